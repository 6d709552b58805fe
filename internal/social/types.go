package social

import (
	"context"
	"fmt"
)

// Provider identifies a social network variant.
type Provider string

const (
	ProviderX        Provider = "x"
	ProviderBluesky  Provider = "bluesky"
	ProviderMastodon Provider = "mastodon"
)

// Known lists every provider the factory can construct, in registry order.
func Known() []Provider {
	return []Provider{ProviderX, ProviderBluesky, ProviderMastodon}
}

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderX, ProviderBluesky, ProviderMastodon:
		return true
	}
	return false
}

// Credentials is an opaque, provider-specific key/value bag. It is owned by
// the caller's credential store and passed by value into each publish call;
// clients never mutate it, a refreshed copy is returned on the result instead.
type Credentials map[string]string

// Clone returns an independent copy of the credential bag.
func (c Credentials) Clone() Credentials {
	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Get returns the value for key, or "" when absent.
func (c Credentials) Get(key string) string {
	return c[key]
}

// MediaKind is the media type variant of an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaGif   MediaKind = "gif"
	MediaVideo MediaKind = "video"
)

// MediaItem is a single attachment, immutable for the duration of a publish
// call. ID is a caller-local identifier used to key the provider media-id map
// on the result.
type MediaItem struct {
	ID        string
	Kind      MediaKind
	MimeType  string
	Contents  []byte
	SizeBytes int
	Filename  string
	AltText   string
}

// ValidationResult is the synchronous, I/O-free outcome of checking a
// credential bag for provider-mandatory fields.
type ValidationResult struct {
	Valid   bool
	Message string
}

// ValidCredentials marks a credential bag as complete.
func ValidCredentials() ValidationResult {
	return ValidationResult{Valid: true}
}

// InvalidCredentials reports the first missing mandatory field.
func InvalidCredentials(message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message}
}

// PublishResult is the uniform outcome of a publish call. Failures are always
// encoded here, never raised across the client boundary. RefreshedCredentials
// is set only when a token rotation happened during a successful publish.
type PublishResult struct {
	Success              bool
	PostID               string
	ProviderMediaIDs     map[string]string
	ErrorMessage         string
	RefreshedCredentials Credentials
}

// Published builds a success result.
func Published(postID string, mediaIDs map[string]string, refreshed Credentials) PublishResult {
	return PublishResult{
		Success:              true,
		PostID:               postID,
		ProviderMediaIDs:     mediaIDs,
		RefreshedCredentials: refreshed,
	}
}

// Failed builds a failure result from an error.
func Failed(err error) PublishResult {
	return PublishResult{ErrorMessage: err.Error()}
}

// Failedf builds a failure result from a format string.
func Failedf(format string, args ...any) PublishResult {
	return PublishResult{ErrorMessage: fmt.Sprintf(format, args...)}
}

// CredentialField describes one entry a credential-entry form must collect.
// The schema is static metadata, derivable without an active session.
type CredentialField struct {
	Key       string
	Label     string
	InputType string
	Required  bool
}

// Client abstracts a social network that can validate credentials and publish
// content. Every failure path of Publish/PublishText is encoded in the
// PublishResult; implementations never panic or return errors across this
// boundary.
type Client interface {
	Provider() Provider
	ValidateCredentials(creds Credentials) ValidationResult
	PublishText(ctx context.Context, accountID string, creds Credentials, text string) PublishResult
	Publish(ctx context.Context, accountID string, creds Credentials, text string, media []MediaItem) PublishResult
	CredentialFields() []CredentialField
}
