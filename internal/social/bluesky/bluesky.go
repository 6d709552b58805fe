// Package bluesky implements the social.Client contract for Bluesky using
// app-password session auth over atproto XRPC, with blob uploads, rich-text
// facets, and link-preview embeds.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/ipfs/go-cid"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/richtext"
	"github.com/blacktop/syndicate/internal/social"
)

const (
	providerName = social.ProviderBluesky

	defaultPDSURL  = "https://bsky.social"
	requestTimeout = 30 * time.Second

	// link-card thumbnails above this size are omitted, not fatal
	maxThumbBytes = 1_000_000
)

// Config allows the caller to override the PDS host and HTTP transport.
type Config struct {
	PDSURL     string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implements social.Client for Bluesky.
type Client struct {
	pdsURL     string
	httpClient *http.Client
	now        func() time.Time
	extractor  *richtext.Extractor
}

// New constructs a Bluesky client. Handle resolution and link-preview fetches
// run through the rich text extractor on a short best-effort timeout.
func New(cfg Config) *Client {
	c := &Client{
		pdsURL:     strings.TrimRight(cfg.PDSURL, "/"),
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
	}
	if c.pdsURL == "" {
		c.pdsURL = defaultPDSURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.extractor = richtext.New(&handleResolver{client: c.rpc(nil)})
	return c
}

func (c *Client) rpc(auth *xrpc.AuthInfo) *xrpc.Client {
	userAgent := "syndicate/1"
	return &xrpc.Client{
		Client:    c.httpClient,
		Host:      c.pdsURL,
		UserAgent: &userAgent,
		Auth:      auth,
	}
}

// Provider identifies this client.
func (c *Client) Provider() social.Provider { return providerName }

// ValidateCredentials checks for the provider-mandatory fields. Pure, no I/O.
func (c *Client) ValidateCredentials(creds social.Credentials) social.ValidationResult {
	if creds.Get("handle") == "" {
		return social.InvalidCredentials(social.CredentialValidationError{Field: "handle"}.Error())
	}
	if creds.Get("app_password") == "" {
		return social.InvalidCredentials(social.CredentialValidationError{Field: "app_password"}.Error())
	}
	return social.ValidCredentials()
}

// CredentialFields describes the credential-entry form schema.
func (c *Client) CredentialFields() []social.CredentialField {
	return []social.CredentialField{
		{Key: "handle", Label: "Handle (e.g. user.bsky.social)", InputType: "text", Required: true},
		{Key: "app_password", Label: "App Password", InputType: "password", Required: true},
	}
}

// PublishText posts text with no media.
func (c *Client) PublishText(ctx context.Context, accountID string, creds social.Credentials, text string) social.PublishResult {
	return c.Publish(ctx, accountID, creds, text, nil)
}

// Publish exchanges the app password for a session, uploads image blobs, and
// composes the feed post record with facets and at most one embed.
func (c *Client) Publish(ctx context.Context, accountID string, creds social.Credentials, text string, media []social.MediaItem) social.PublishResult {
	if validation := c.ValidateCredentials(creds); !validation.Valid {
		return social.PublishResult{ErrorMessage: validation.Message}
	}

	session, err := c.createSession(ctx, creds.Get("handle"), creds.Get("app_password"))
	if err != nil {
		logutil.Errorf("Bluesky login failed: account=%s err=%v", accountID, err)
		return social.Failedf("Failed to authenticate with Bluesky")
	}

	result, err := c.createPost(ctx, session, text, media)
	if err != nil {
		logutil.Errorf("Bluesky publish failed: account=%s err=%v", accountID, err)
		return social.Failed(err)
	}
	return result
}

func (c *Client) createSession(ctx context.Context, handle, appPassword string) (*xrpc.Client, error) {
	rpc := c.rpc(nil)
	session, err := atproto.ServerCreateSession(ctx, rpc, &atproto.ServerCreateSession_Input{
		Identifier: handle,
		Password:   appPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return c.rpc(&xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}), nil
}

func (c *Client) createPost(ctx context.Context, rpc *xrpc.Client, text string, media []social.MediaItem) (social.PublishResult, error) {
	providerMediaIDs := map[string]string{}
	var embed *bsky.FeedPost_Embed
	hasMedia := len(media) > 0

	if hasMedia {
		for _, item := range media {
			if item.Kind == social.MediaVideo {
				return social.PublishResult{}, social.UnsupportedFeatureError{Provider: providerName, Feature: "video publishing"}
			}
		}

		images := make([]*bsky.EmbedImages_Image, 0, len(media))
		for _, item := range media {
			blob, err := c.uploadBlob(ctx, rpc, item.Contents, item.MimeType)
			if err != nil {
				logutil.Warnf("Bluesky blob upload failed: file=%s err=%v", item.Filename, err)
				return social.Failed(social.UploadError{Provider: providerName, Filename: item.Filename}), nil
			}
			providerMediaIDs[item.ID] = cid.Cid(blob.Ref).String()
			images = append(images, &bsky.EmbedImages_Image{
				Alt:   item.AltText,
				Image: blob,
			})
		}
		embed = &bsky.FeedPost_Embed{EmbedImages: &bsky.EmbedImages{Images: images}}
	}

	// link-card embeds are only attempted when there is no media; image and
	// external embeds are mutually exclusive in the record
	extracted := c.extractor.Build(ctx, text, !hasMedia)

	if !hasMedia && extracted.LinkEmbed != nil {
		embed = c.buildExternalEmbed(ctx, rpc, extracted.LinkEmbed)
	}

	post := &bsky.FeedPost{
		Text:      text,
		CreatedAt: c.now().UTC().Format(time.RFC3339),
	}
	if facets := toRichtextFacets(extracted.Facets); len(facets) > 0 {
		post.Facets = facets
	}
	if embed != nil {
		post.Embed = embed
	}

	out, err := atproto.RepoCreateRecord(ctx, rpc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       rpc.Auth.Did,
		Record:     &util.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return social.PublishResult{}, social.PublishAPIError{Provider: providerName, Message: apiErrorMessage(err)}
	}

	return social.Published(out.Uri, providerMediaIDs, nil), nil
}

// buildExternalEmbed turns OG metadata into an app.bsky.embed.external,
// re-uploading the page image as the card thumbnail when it is small enough
// and actually an image. A missing thumbnail never fails the embed.
func (c *Client) buildExternalEmbed(ctx context.Context, rpc *xrpc.Client, link *richtext.LinkEmbed) *bsky.FeedPost_Embed {
	external := &bsky.EmbedExternal_External{
		Uri:         link.URI,
		Title:       link.Title,
		Description: link.Description,
	}

	if link.ImageURL != "" {
		if thumb := c.fetchThumbBlob(ctx, rpc, link.ImageURL); thumb != nil {
			external.Thumb = thumb
		}
	}

	return &bsky.FeedPost_Embed{EmbedExternal: &bsky.EmbedExternal{External: external}}
}

func (c *Client) fetchThumbBlob(ctx context.Context, rpc *xrpc.Client, imageURL string) *util.LexBlob {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}

	fetcher := &http.Client{Timeout: 5 * time.Second}
	resp, err := fetcher.Do(req)
	if err != nil {
		logutil.Debugf("Bluesky thumb fetch failed: url=%s err=%v", imageURL, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbBytes+1))
	if err != nil || len(body) == 0 || len(body) > maxThumbBytes {
		return nil
	}

	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mime, "image/") {
		return nil
	}

	blob, err := c.uploadBlob(ctx, rpc, body, mime)
	if err != nil {
		logutil.Debugf("Bluesky thumb upload failed: url=%s err=%v", imageURL, err)
		return nil
	}
	return blob
}

// uploadBlob posts raw bytes to com.atproto.repo.uploadBlob with the item's
// own mime type as Content-Type (the generated stub would pin */*).
func (c *Client) uploadBlob(ctx context.Context, rpc *xrpc.Client, contents []byte, mimeType string) (*util.LexBlob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pdsURL+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(contents))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+rpc.Auth.AccessJwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return nil, fmt.Errorf("upload blob: HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		Blob *util.LexBlob `json:"blob"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload blob: decode: %w", err)
	}
	if out.Blob == nil {
		return nil, errors.New("upload blob: empty response")
	}
	return out.Blob, nil
}

func toRichtextFacets(facets []richtext.Facet) []*bsky.RichtextFacet {
	out := make([]*bsky.RichtextFacet, 0, len(facets))
	for _, f := range facets {
		facet := &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{
				ByteStart: int64(f.ByteStart),
				ByteEnd:   int64(f.ByteEnd),
			},
		}
		switch f.Kind {
		case richtext.FeatureLink:
			facet.Features = []*bsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: f.URI}},
			}
		case richtext.FeatureMention:
			facet.Features = []*bsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Mention: &bsky.RichtextFacet_Mention{Did: f.DID}},
			}
		case richtext.FeatureTag:
			facet.Features = []*bsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Tag: &bsky.RichtextFacet_Tag{Tag: f.Tag}},
			}
		default:
			continue
		}
		out = append(out, facet)
	}
	return out
}

// apiErrorMessage prefers the API's own message/error field over transport
// detail.
func apiErrorMessage(err error) string {
	var xe *xrpc.XRPCError
	if errors.As(err, &xe) {
		if xe.Message != "" {
			return xe.Message
		}
		if xe.ErrStr != "" {
			return xe.ErrStr
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// handleResolver resolves @handles to DIDs via com.atproto.identity.resolveHandle.
type handleResolver struct {
	client *xrpc.Client
}

func (r *handleResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := atproto.IdentityResolveHandle(lookupCtx, r.client, handle)
	if err != nil {
		return "", err
	}
	return out.Did, nil
}
