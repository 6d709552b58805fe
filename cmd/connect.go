package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/blacktop/syndicate/internal/oauth"
)

const callbackWait = 5 * time.Minute

func newConnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link an account through the provider's authorization flow",
	}
	cmd.AddCommand(newConnectXCommand())
	return cmd
}

func newConnectXCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "x",
		Short: "Link an X account via OAuth2 with PKCE",
		Long: "connect x opens X's authorization page and waits for the redirect on the " +
			"configured loopback redirect URI, then stores the linked account's tokens.",
		RunE: runConnectX,
	}
}

func runConnectX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, store, _, err := loadEnvironment()
	if err != nil {
		return err
	}

	flow := oauth.NewFlow(oauth.Config{
		ClientID:     cfg.X.ClientID,
		ClientSecret: cfg.X.ClientSecret,
		RedirectURI:  cfg.X.RedirectURI,
		AuthorizeURL: cfg.X.AuthorizeURL,
		APIBaseURL:   cfg.X.APIBaseURL,
	}, oauth.NewMemorySessionStore(), store)

	authorizeURL, err := flow.AuthorizeURL()
	if err != nil {
		return err
	}

	redirect, err := url.Parse(cfg.X.RedirectURI)
	if err != nil {
		return fmt.Errorf("parse redirect uri: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}
	defer listener.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in your browser to authorize:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+authorizeURL)
	fmt.Fprintln(out)

	type callbackResult struct {
		account *oauth.Account
		err     error
	}
	done := make(chan callbackResult, 1)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != redirect.Path {
			http.NotFound(w, r)
			return
		}
		account, err := flow.HandleCallback(r.Context(), r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Account connected. You can close this tab.")
		}
		select {
		case done <- callbackResult{account: account, err: err}:
		default:
		}
	})}
	go server.Serve(listener)
	defer server.Close()

	select {
	case result := <-done:
		if result.err != nil {
			return result.err
		}
		fmt.Fprintf(out, "X account %s connected successfully.\n", result.account.DisplayName)
		return nil
	case <-time.After(callbackWait):
		return errors.New("timed out waiting for the authorization callback")
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
