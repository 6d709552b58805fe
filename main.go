package main

import (
	"os"

	"github.com/blacktop/syndicate/cmd"
	"github.com/blacktop/syndicate/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
