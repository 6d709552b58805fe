/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/blacktop/syndicate/internal/accounts"
	"github.com/blacktop/syndicate/internal/config"
	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/social/bluesky"
	"github.com/blacktop/syndicate/internal/social/factory"
	"github.com/blacktop/syndicate/internal/social/x"
)

var verbose bool

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syndicate",
		Short: "Publish to social networks from one place",
		Long: "syndicate publishes posts to X, Bluesky, and Mastodon through linked accounts. " +
			"Connect an account with `syndicate connect` or `syndicate accounts add`, then publish with `syndicate post`.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetVerbose(verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose logging")

	cmd.AddCommand(newPostCommand())
	cmd.AddCommand(newConnectCommand())
	cmd.AddCommand(newAccountsCommand())
	cmd.AddCommand(newFieldsCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

// loadEnvironment wires the config file, the accounts store, and the provider
// factory options shared by the subcommands.
func loadEnvironment() (*config.Config, *accounts.Store, factory.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, factory.Options{}, err
	}

	path := cfg.AccountsPath
	if path == "" {
		path, err = accounts.DefaultPath()
		if err != nil {
			return nil, nil, factory.Options{}, err
		}
	}

	opts := factory.Options{
		X: x.Config{
			ClientID:     cfg.X.ClientID,
			ClientSecret: cfg.X.ClientSecret,
			APIBaseURL:   cfg.X.APIBaseURL,
		},
		Bluesky: bluesky.Config{
			PDSURL: cfg.Bluesky.PDSURL,
		},
	}

	return cfg, accounts.NewStore(path), opts, nil
}
