// Package mastodon implements the social.Client contract for Mastodon on top
// of the go-mastodon API client.
package mastodon

import (
	"bytes"
	"context"
	"time"

	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/social"
)

const (
	providerName   = social.ProviderMastodon
	requestTimeout = 30 * time.Second
)

// Client implements social.Client for Mastodon. The instance server and
// access token travel in the per-call credential bag, so the API client is
// constructed per publish.
type Client struct{}

// New constructs a Mastodon client.
func New() *Client { return &Client{} }

// Provider identifies this client.
func (c *Client) Provider() social.Provider { return providerName }

// ValidateCredentials checks for the provider-mandatory fields. Pure, no I/O.
func (c *Client) ValidateCredentials(creds social.Credentials) social.ValidationResult {
	if creds.Get("server") == "" {
		return social.InvalidCredentials(social.CredentialValidationError{Field: "server"}.Error())
	}
	if creds.Get("access_token") == "" {
		return social.InvalidCredentials(social.CredentialValidationError{Field: "access_token"}.Error())
	}
	return social.ValidCredentials()
}

// CredentialFields describes the credential-entry form schema.
func (c *Client) CredentialFields() []social.CredentialField {
	return []social.CredentialField{
		{Key: "server", Label: "Server (e.g. https://mastodon.social)", InputType: "text", Required: true},
		{Key: "access_token", Label: "Access Token", InputType: "password", Required: true},
	}
}

// PublishText posts text with no media.
func (c *Client) PublishText(ctx context.Context, accountID string, creds social.Credentials, text string) social.PublishResult {
	return c.Publish(ctx, accountID, creds, text, nil)
}

// Publish uploads each attachment as a Mastodon media item and creates the
// status referencing them in upload order.
func (c *Client) Publish(ctx context.Context, accountID string, creds social.Credentials, text string, media []social.MediaItem) social.PublishResult {
	if validation := c.ValidateCredentials(creds); !validation.Valid {
		return social.PublishResult{ErrorMessage: validation.Message}
	}

	api := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      creds.Get("server"),
		AccessToken: creds.Get("access_token"),
	})
	api.Timeout = requestTimeout

	providerMediaIDs := make(map[string]string, len(media))
	mediaIDs := make([]mastodonapi.ID, 0, len(media))

	for _, item := range media {
		attachment, err := api.UploadMediaFromMedia(ctx, &mastodonapi.Media{
			File:        bytes.NewReader(item.Contents),
			Description: item.AltText,
		})
		if err != nil {
			logutil.Errorf("Mastodon media upload failed: account=%s file=%s err=%v", accountID, item.Filename, err)
			return social.Failed(social.UploadError{Provider: providerName, Filename: item.Filename})
		}
		providerMediaIDs[item.ID] = string(attachment.ID)
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	status, err := api.PostStatus(ctx, &mastodonapi.Toot{
		Status:   text,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		logutil.Errorf("Mastodon publish failed: account=%s err=%v", accountID, err)
		return social.Failed(social.PublishAPIError{Provider: providerName, Message: err.Error()})
	}

	return social.Published(string(status.ID), providerMediaIDs, nil)
}
