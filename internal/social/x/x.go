// Package x implements the social.Client contract for X (Twitter) using
// OAuth 2.0 user-context bearer tokens, with proactive token refresh and
// simple or chunked media upload against the v2 API.
package x

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/social"
)

const (
	providerName = social.ProviderX

	defaultAPIBaseURL = "https://api.x.com/2"
	requestTimeout    = 30 * time.Second

	// a token this close to expiry is refreshed before use
	expiryBuffer = 300 * time.Second

	// APPEND segment size for chunked video upload
	defaultChunkSize = 5 * 1024 * 1024
)

// Config carries the application-level OAuth client settings. ClientID and
// ClientSecret are only needed when a publish has to refresh an expired token.
type Config struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Client implements social.Client for X.
type Client struct {
	clientID     string
	clientSecret string
	apiBaseURL   string
	httpClient   *http.Client
	now          func() time.Time
	chunkSize    int
}

// New constructs an X client.
func New(cfg Config) *Client {
	c := &Client{
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		apiBaseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient:   cfg.HTTPClient,
		now:          cfg.Now,
		chunkSize:    defaultChunkSize,
	}
	if c.apiBaseURL == "" {
		c.apiBaseURL = defaultAPIBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Provider identifies this client.
func (c *Client) Provider() social.Provider { return providerName }

// ValidateCredentials checks for the provider-mandatory fields. Pure, no I/O.
func (c *Client) ValidateCredentials(creds social.Credentials) social.ValidationResult {
	if creds.Get("access_token") == "" {
		return social.InvalidCredentials(social.CredentialValidationError{Field: "access_token"}.Error())
	}
	return social.ValidCredentials()
}

// CredentialFields describes the credential-entry form schema.
func (c *Client) CredentialFields() []social.CredentialField {
	return []social.CredentialField{
		{Key: "access_token", Label: "Access Token (OAuth 2.0)", InputType: "password", Required: true},
		{Key: "refresh_token", Label: "Refresh Token (OAuth 2.0)", InputType: "password", Required: false},
		{Key: "expires_at", Label: "Token Expiry", InputType: "text", Required: false},
	}
}

// PublishText posts text with no media.
func (c *Client) PublishText(ctx context.Context, accountID string, creds social.Credentials, text string) social.PublishResult {
	return c.Publish(ctx, accountID, creds, text, nil)
}

// Publish validates credentials, refreshes the access token when close to
// expiry, uploads each media item in order, and creates the post. A refreshed
// credential bag is reported only together with overall publish success.
func (c *Client) Publish(ctx context.Context, accountID string, creds social.Credentials, text string, media []social.MediaItem) social.PublishResult {
	if validation := c.ValidateCredentials(creds); !validation.Valid {
		return social.PublishResult{ErrorMessage: validation.Message}
	}

	var refreshed social.Credentials
	if c.tokenExpired(creds) {
		fresh, err := c.refreshCredentials(ctx, creds)
		if err != nil {
			return social.Failed(err)
		}
		creds = fresh
		refreshed = fresh
	}

	token := creds.Get("access_token")
	mediaIDs := make(map[string]string, len(media))
	ordered := make([]string, 0, len(media))

	for _, item := range media {
		uploaded, err := c.uploadMedia(ctx, token, item)
		if err != nil {
			logutil.Errorf("X media upload failed: account=%s file=%s err=%v", accountID, item.Filename, err)
			return social.Failed(social.UploadError{Provider: providerName, Filename: item.Filename})
		}
		mediaIDs[item.ID] = uploaded
		ordered = append(ordered, uploaded)
	}

	postID, err := c.createPost(ctx, token, text, ordered)
	if err != nil {
		logutil.Errorf("X publish failed: account=%s err=%v", accountID, err)
		return social.Failed(err)
	}

	return social.Published(postID, mediaIDs, refreshed)
}

// tokenExpired reports whether the stored token needs a refresh. A credential
// bag without expires_at never forces one.
func (c *Client) tokenExpired(creds social.Credentials) bool {
	raw := creds.Get("expires_at")
	if raw == "" {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logutil.Warnf("X credentials carry an unparseable expires_at %q, forcing refresh", raw)
		return true
	}
	return c.now().Add(expiryBuffer).After(expiresAt)
}

var (
	errNoRefreshToken = errors.New("No refresh token is stored for this X account. Please disconnect and reconnect the account so we can obtain a refresh token and automatically renew access.")
	errRefreshConfig  = errors.New("X token refresh is not configured (missing client id or client secret). Please ask the administrator to configure them and reconnect your X account.")
	errRefreshDenied  = errors.New("X rejected the token refresh (the refresh token may have been revoked). Please disconnect and reconnect your X account.")
)

// refreshCredentials exchanges the refresh token for a new access token and
// returns a fresh credential bag; the input bag is never mutated.
func (c *Client) refreshCredentials(ctx context.Context, creds social.Credentials) (social.Credentials, error) {
	refreshToken := creds.Get("refresh_token")
	if refreshToken == "" {
		logutil.Warnf("X token refresh attempted without a refresh token")
		return nil, errNoRefreshToken
	}
	if c.clientID == "" || c.clientSecret == "" {
		logutil.Warnf("X token refresh failed: client id or secret not configured")
		return nil, errRefreshConfig
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errRefreshDenied
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logutil.Warnf("X token refresh request failed: %v", err)
		return nil, errRefreshDenied
	}
	defer resp.Body.Close()

	body := decodeJSON(resp.Body)
	accessToken, _ := body["access_token"].(string)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || accessToken == "" {
		logutil.Warnf("X token refresh rejected: status=%d error=%v description=%v",
			resp.StatusCode, body["error"], body["error_description"])
		return nil, errRefreshDenied
	}

	fresh := creds.Clone()
	fresh["access_token"] = accessToken
	if v, ok := body["refresh_token"].(string); ok && v != "" {
		fresh["refresh_token"] = v
	}
	if v, ok := body["expires_in"].(float64); ok {
		fresh["expires_at"] = c.now().Add(time.Duration(v) * time.Second).Format(time.RFC3339)
	}
	if v, ok := body["scope"].(string); ok && v != "" {
		fresh["scope"] = v
	}
	if v, ok := body["token_type"].(string); ok && v != "" {
		fresh["token_type"] = v
	} else if fresh["token_type"] == "" {
		fresh["token_type"] = "bearer"
	}

	return fresh, nil
}

// uploadMedia pushes one media item to the v2 media upload endpoint: a single
// multipart POST for images and GIFs, the chunked INIT/APPEND/FINALIZE
// protocol for video.
func (c *Client) uploadMedia(ctx context.Context, token string, item social.MediaItem) (string, error) {
	uploadURL := c.apiBaseURL + "/media/upload"

	if item.Kind == social.MediaVideo {
		return c.chunkedUpload(ctx, token, item, uploadURL)
	}

	category := "tweet_image"
	if item.Kind == social.MediaGif {
		category = "tweet_gif"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	filename := item.Filename
	if filename == "" {
		filename = "image"
	}
	part, err := writer.CreateFormFile("media", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(item.Contents); err != nil {
		return "", err
	}
	if err := writer.WriteField("media_category", category); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := c.postMultipart(ctx, token, uploadURL, writer.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if id := extractMediaID(raw); id != "" {
			return id, nil
		}
	}

	logutil.Warnf("X media upload failed: status=%d body=%s", resp.StatusCode, diagnosticBody(raw))
	return "", fmt.Errorf("media upload rejected (HTTP %d)", resp.StatusCode)
}

// extractMediaID pulls the media identifier out of an upload response. The API
// has returned the id under different keys across versions; check them in a
// fixed priority order and coerce to string.
func extractMediaID(raw []byte) string {
	var body struct {
		Data struct {
			ID            string          `json:"id"`
			MediaIDString string          `json:"media_id_string"`
			MediaID       json.RawMessage `json:"media_id"`
		} `json:"data"`
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Data.ID != "" {
		return body.Data.ID
	}
	if body.MediaIDString != "" {
		return body.MediaIDString
	}
	if body.Data.MediaIDString != "" {
		return body.Data.MediaIDString
	}
	if len(body.Data.MediaID) > 0 {
		var asString string
		if err := json.Unmarshal(body.Data.MediaID, &asString); err == nil {
			return asString
		}
		var asNumber json.Number
		if err := json.Unmarshal(body.Data.MediaID, &asNumber); err == nil {
			return asNumber.String()
		}
	}
	return ""
}

// chunkedUpload runs the INIT, APPEND, FINALIZE state machine for video. The
// whole upload is all-or-nothing: any failed segment aborts it and no segment
// is retried.
func (c *Client) chunkedUpload(ctx context.Context, token string, item social.MediaItem, uploadURL string) (string, error) {
	initForm := url.Values{
		"command":        {"INIT"},
		"media_type":     {item.MimeType},
		"total_bytes":    {strconv.Itoa(item.SizeBytes)},
		"media_category": {"amplify_video"},
	}
	mediaID, err := c.postForm(ctx, token, uploadURL, initForm, "media_id_string")
	if err != nil || mediaID == "" {
		logutil.Warnf("X chunked upload INIT failed: err=%v", err)
		return "", fmt.Errorf("chunked upload INIT failed")
	}

	for index, offset := 0, 0; offset < len(item.Contents); index, offset = index+1, offset+c.chunkSize {
		end := offset + c.chunkSize
		if end > len(item.Contents) {
			end = len(item.Contents)
		}

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		writer.WriteField("command", "APPEND")
		writer.WriteField("media_id", mediaID)
		writer.WriteField("segment_index", strconv.Itoa(index))
		writer.WriteField("media_data", base64.StdEncoding.EncodeToString(item.Contents[offset:end]))
		if err := writer.Close(); err != nil {
			return "", err
		}

		resp, err := c.postMultipart(ctx, token, uploadURL, writer.FormDataContentType(), &buf)
		if err != nil {
			logutil.Warnf("X chunked upload APPEND failed: segment=%d err=%v", index, err)
			return "", fmt.Errorf("chunked upload APPEND failed at segment %d", index)
		}
		status := resp.StatusCode
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if status < 200 || status >= 300 {
			logutil.Warnf("X chunked upload APPEND failed: segment=%d status=%d", index, status)
			return "", fmt.Errorf("chunked upload APPEND failed at segment %d", index)
		}
	}

	finalizeForm := url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}
	if _, err := c.postForm(ctx, token, uploadURL, finalizeForm, ""); err != nil {
		logutil.Warnf("X chunked upload FINALIZE failed: err=%v", err)
		return "", fmt.Errorf("chunked upload FINALIZE failed")
	}

	return mediaID, nil
}

// createPost sends the tweet-creation request and returns the new post id. On
// rejection the API's structured detail/title is preferred over a generic
// HTTP-status message.
func (c *Client) createPost(ctx context.Context, token, text string, mediaIDs []string) (string, error) {
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/tweets", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body := decodeJSON(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if data, ok := body["data"].(map[string]any); ok {
			if id, ok := data["id"].(string); ok && id != "" {
				return id, nil
			}
		}
	}

	message := ""
	if detail, ok := body["detail"].(string); ok && detail != "" {
		message = detail
	} else if title, ok := body["title"].(string); ok && title != "" {
		message = title
	}
	return "", social.PublishAPIError{Provider: providerName, Message: message, Status: resp.StatusCode}
}

func (c *Client) postMultipart(ctx context.Context, token, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(req)
}

// postForm sends a bearer-authenticated form POST; when wantKey is non-empty
// the response must be 2xx JSON carrying that string key.
func (c *Client) postForm(ctx context.Context, token, endpoint string, form url.Values, wantKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if wantKey == "" {
		io.Copy(io.Discard, resp.Body)
		return "", nil
	}

	body := decodeJSON(resp.Body)
	value, _ := body[wantKey].(string)
	if value == "" {
		return "", fmt.Errorf("response missing %s", wantKey)
	}
	return value, nil
}

func decodeJSON(r io.Reader) map[string]any {
	body := map[string]any{}
	json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&body)
	return body
}

func diagnosticBody(raw []byte) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
