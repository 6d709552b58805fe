// Package factory is the registry mapping a provider key to a constructed
// client. Callers outside internal/social use only this and the contract;
// wiring a new provider happens here and nowhere else.
package factory

import (
	"fmt"

	"github.com/blacktop/syndicate/internal/social"
	"github.com/blacktop/syndicate/internal/social/bluesky"
	"github.com/blacktop/syndicate/internal/social/mastodon"
	"github.com/blacktop/syndicate/internal/social/x"
)

// Options carries the per-provider construction settings.
type Options struct {
	X       x.Config
	Bluesky bluesky.Config
}

// New resolves a provider key to a constructed client.
func New(provider social.Provider, opts Options) (social.Client, error) {
	switch provider {
	case social.ProviderX:
		return x.New(opts.X), nil
	case social.ProviderBluesky:
		return bluesky.New(opts.Bluesky), nil
	case social.ProviderMastodon:
		return mastodon.New(), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", provider)
}

// All constructs every known provider client, keyed by provider, in registry
// order.
func All(opts Options) map[social.Provider]social.Client {
	out := make(map[social.Provider]social.Client, len(social.Known()))
	for _, provider := range social.Known() {
		client, err := New(provider, opts)
		if err != nil {
			continue
		}
		out[provider] = client
	}
	return out
}

// CredentialFields returns the credential-entry schema for a provider without
// touching any session state.
func CredentialFields(provider social.Provider) ([]social.CredentialField, error) {
	client, err := New(provider, Options{})
	if err != nil {
		return nil, err
	}
	return client.CredentialFields(), nil
}
