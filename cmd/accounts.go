package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blacktop/syndicate/internal/oauth"
	"github.com/blacktop/syndicate/internal/social"
	"github.com/blacktop/syndicate/internal/social/factory"
)

func newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage linked accounts",
		RunE:  runAccountsList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List linked accounts",
		RunE:  runAccountsList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <provider>",
		Short: "Link an account by entering its credentials",
		Long: "add prompts for the provider's credential fields (app passwords and tokens " +
			"are read without echo) and stores the account locally.",
		Args: cobra.ExactArgs(1),
		RunE: runAccountsAdd,
	})
	return cmd
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	_, store, _, err := loadEnvironment()
	if err != nil {
		return err
	}

	all, err := store.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(all) == 0 {
		fmt.Fprintln(out, "no linked accounts")
		return nil
	}
	for _, account := range all {
		fmt.Fprintf(out, "%s\t%s\t%s\n", account.AccountRef, account.Provider, account.DisplayName)
	}
	return nil
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	provider := social.Provider(strings.ToLower(strings.TrimSpace(args[0])))
	if !provider.Valid() {
		return fmt.Errorf("unsupported provider %q", args[0])
	}

	fields, err := factory.CredentialFields(provider)
	if err != nil {
		return err
	}

	_, store, _, err := loadEnvironment()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())
	creds := social.Credentials{}

	for _, field := range fields {
		label := field.Label
		if !field.Required {
			label += " (optional)"
		}
		fmt.Fprintf(out, "%s: ", label)

		value, err := readFieldValue(cmd, reader, field)
		if err != nil {
			return err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			if field.Required {
				return fmt.Errorf("%s is required", field.Key)
			}
			continue
		}
		creds[field.Key] = value
	}

	displayName := displayNameFor(provider, creds)

	account := oauth.Account{
		AccountRef:  uuid.NewString(),
		Provider:    provider,
		DisplayName: displayName,
		ExternalID:  displayName,
		Credentials: creds,
	}
	if err := store.SaveAccount(cmd.Context(), account); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s account %s added.\n", provider, displayName)
	return nil
}

// readFieldValue reads one credential value; password fields are read without
// echo when stdin is a terminal.
func readFieldValue(cmd *cobra.Command, reader *bufio.Reader, field social.CredentialField) (string, error) {
	stdin, isFile := cmd.InOrStdin().(*os.File)
	if field.InputType == "password" && isFile && term.IsTerminal(int(stdin.Fd())) {
		raw, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("input closed before all fields were entered")
	}
	return line, nil
}

func displayNameFor(provider social.Provider, creds social.Credentials) string {
	switch provider {
	case social.ProviderBluesky:
		return creds.Get("handle")
	case social.ProviderMastodon:
		return creds.Get("server")
	default:
		return string(provider)
	}
}
