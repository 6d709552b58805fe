package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blacktop/syndicate/internal/social"
	"github.com/blacktop/syndicate/internal/social/factory"
)

func newFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields [provider]",
		Short: "Show the credential fields a provider requires",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFields,
	}
}

func runFields(cmd *cobra.Command, args []string) error {
	providers := social.Known()
	if len(args) == 1 {
		provider := social.Provider(strings.ToLower(strings.TrimSpace(args[0])))
		if !provider.Valid() {
			return fmt.Errorf("unsupported provider %q", args[0])
		}
		providers = []social.Provider{provider}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	for _, provider := range providers {
		fields, err := factory.CredentialFields(provider)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", provider)
		for _, field := range fields {
			required := "optional"
			if field.Required {
				required = "required"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", field.Key, field.InputType, required, field.Label)
		}
	}
	return nil
}
