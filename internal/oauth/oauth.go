// Package oauth drives the OAuth2 authorization-code-with-PKCE dance for X:
// building the authorization redirect, consuming the one-shot callback, and
// handing the resulting credentials to the caller's account store.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/social"
)

// Scopes covers posting, reading identity, and uploading media. offline.access
// requests a refresh token.
const Scopes = "tweet.read tweet.write users.read media.write offline.access"

const (
	defaultAuthorizeURL = "https://x.com/i/oauth2/authorize"
	defaultAPIBaseURL   = "https://api.x.com/2"

	stateLength    = 40
	verifierLength = 128

	requestTimeout = 30 * time.Second
)

// SessionStore is the one-shot slot holding the {state, verifier} pair between
// redirect and callback. PullAndClear must be atomic so a replayed callback
// cannot reuse a consumed pair.
type SessionStore interface {
	Put(state, verifier string)
	PullAndClear() (state, verifier string, ok bool)
}

// Account is the linked-account record handed to the credential store after a
// successful flow.
type Account struct {
	AccountRef  string             `json:"account_ref"`
	Provider    social.Provider    `json:"provider"`
	DisplayName string             `json:"display_name"`
	ExternalID  string             `json:"external_id"`
	Credentials social.Credentials `json:"credentials"`
}

// AccountStore persists a linked account. The flow does not depend on anything
// it returns beyond the error.
type AccountStore interface {
	SaveAccount(ctx context.Context, account Account) error
}

// Config carries the X application settings for the flow.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	APIBaseURL   string
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Flow is the authorization flow controller.
type Flow struct {
	cfg      Config
	http     *http.Client
	now      func() time.Time
	sessions SessionStore
	store    AccountStore
}

// NewFlow constructs a Flow around the given one-shot session slot and account
// store.
func NewFlow(cfg Config, sessions SessionStore, store AccountStore) *Flow {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultAuthorizeURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Flow{cfg: cfg, http: httpClient, now: now, sessions: sessions, store: store}
}

// AuthorizeURL generates a fresh {state, verifier} pair, stores it in the
// session slot, and returns the authorization URL the user must visit.
func (f *Flow) AuthorizeURL() (string, error) {
	if f.cfg.ClientID == "" {
		return "", social.ConfigurationError{Provider: social.ProviderX, Detail: "set the X OAuth2 client id in the configuration"}
	}

	state := randomURLSafe(stateLength)
	verifier := randomURLSafe(verifierLength)
	challenge := CodeChallenge(verifier)

	f.sessions.Put(state, verifier)

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {f.cfg.ClientID},
		"redirect_uri":          {f.cfg.RedirectURI},
		"scope":                 {Scopes},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}

	return f.cfg.AuthorizeURL + "?" + params.Encode(), nil
}

// CodeChallenge derives the S256 challenge for a code verifier:
// base64url without padding over the SHA-256 digest.
func CodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// HandleCallback consumes the provider redirect. Every failure returns a typed
// error whose message is safe to show the end user; low-level detail goes to
// the diagnostic log only. On success the linked account has been handed to
// the account store.
func (f *Flow) HandleCallback(ctx context.Context, query url.Values) (*Account, error) {
	if errCode := query.Get("error"); errCode != "" {
		description := query.Get("error_description")
		if description == "" {
			description = errCode
		}
		return nil, AuthDeniedError{Description: description}
	}

	storedState, verifier, ok := f.sessions.PullAndClear()
	if !ok || query.Get("state") != storedState {
		return nil, StateMismatchError{}
	}

	code := query.Get("code")
	if code == "" {
		return nil, MissingCodeError{}
	}

	tokens, err := f.exchangeCode(ctx, code, verifier)
	if err != nil {
		logutil.Warnf("X token exchange failed: %v", err)
		return nil, TokenExchangeError{}
	}

	id, username, err := f.fetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		logutil.Warnf("X profile fetch failed: %v", err)
		return nil, ProfileFetchError{}
	}

	creds := social.Credentials{
		"access_token": tokens.AccessToken,
		"token_type":   tokens.TokenType,
	}
	if creds["token_type"] == "" {
		creds["token_type"] = "bearer"
	}
	if tokens.RefreshToken != "" {
		creds["refresh_token"] = tokens.RefreshToken
	}
	if tokens.ExpiresIn > 0 {
		creds["expires_at"] = f.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Format(time.RFC3339)
	}
	if tokens.Scope != "" {
		creds["scope"] = tokens.Scope
	}

	account := Account{
		AccountRef:  uuid.NewString(),
		Provider:    social.ProviderX,
		DisplayName: "@" + username,
		ExternalID:  id,
		Credentials: creds,
	}

	if err := f.store.SaveAccount(ctx, account); err != nil {
		logutil.Errorf("saving linked X account failed: %v", err)
		return nil, err
	}

	logutil.Infof("X account %s connected", account.DisplayName)
	return &account, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// exchangeCode trades the authorization code for tokens via a form-encoded
// POST with client basic auth and the PKCE code verifier.
func (f *Flow) exchangeCode(ctx context.Context, code, verifier string) (*tokenResponse, error) {
	form := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {f.cfg.RedirectURI},
		"code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.APIBaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var tokens tokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 || tokens.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint status=%d body=%s", resp.StatusCode, string(raw))
	}
	return &tokens, nil
}

// fetchProfile loads the authenticated user and requires a non-empty id and
// username.
func (f *Flow) fetchProfile(ctx context.Context, accessToken string) (id, username string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.APIBaseURL+"/users/me", nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || body.Data.ID == "" || body.Data.Username == "" {
		return "", "", fmt.Errorf("users/me status=%d title=%q", resp.StatusCode, body.Title)
	}
	return body.Data.ID, body.Data.Username, nil
}

// randomURLSafe returns n URL-safe random characters.
func randomURLSafe(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n]
}
