package x

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/syndicate/internal/social"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newTestClient(baseURL string) *Client {
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIBaseURL:   baseURL,
		Now:          fixedNow,
	})
}

func TestValidateCredentials(t *testing.T) {
	c := newTestClient("")

	result := c.ValidateCredentials(social.Credentials{})
	assert.False(t, result.Valid)
	assert.Equal(t, "Missing required credential: access_token", result.Message)

	result = c.ValidateCredentials(social.Credentials{"access_token": "tok"})
	assert.True(t, result.Valid)
}

func TestTokenExpired(t *testing.T) {
	c := newTestClient("")

	tests := []struct {
		name      string
		expiresAt string
		want      bool
	}{
		{"absent expiry never refreshes", "", false},
		{"inside the five minute buffer", testNow.Add(2 * time.Minute).Format(time.RFC3339), true},
		{"well in the future", testNow.Add(time.Hour).Format(time.RFC3339), false},
		{"already expired", testNow.Add(-time.Minute).Format(time.RFC3339), true},
		{"unparseable forces refresh", "not-a-timestamp", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := social.Credentials{"access_token": "tok"}
			if tt.expiresAt != "" {
				creds["expires_at"] = tt.expiresAt
			}
			assert.Equal(t, tt.want, c.tokenExpired(creds))
		})
	}
}

func TestPublishRefreshesNearExpiryToken(t *testing.T) {
	var tokenCalls, tweetCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			atomic.AddInt32(&tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
			assert.Equal(t, "old-refresh", r.PostFormValue("refresh_token"))
			fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200,"scope":"tweet.write","token_type":"bearer"}`)
		case "/tweets":
			atomic.AddInt32(&tweetCalls, 1)
			assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"data":{"id":"1234567890"}}`)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer server.Close()

	creds := social.Credentials{
		"access_token":  "old-access",
		"refresh_token": "old-refresh",
		"expires_at":    testNow.Add(2 * time.Minute).Format(time.RFC3339),
	}
	result := newTestClient(server.URL).Publish(context.Background(), "acct-1", creds, "hello", nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "1234567890", result.PostID)
	assert.EqualValues(t, 1, tokenCalls)
	assert.EqualValues(t, 1, tweetCalls)

	require.NotNil(t, result.RefreshedCredentials)
	assert.Equal(t, "new-access", result.RefreshedCredentials.Get("access_token"))
	assert.Equal(t, "new-refresh", result.RefreshedCredentials.Get("refresh_token"))
	assert.Equal(t, "tweet.write", result.RefreshedCredentials.Get("scope"))
	assert.Equal(t, testNow.Add(7200*time.Second).Format(time.RFC3339), result.RefreshedCredentials.Get("expires_at"))

	// the caller's bag is never mutated
	assert.Equal(t, "old-access", creds.Get("access_token"))
}

func TestPublishSkipsRefreshWithoutExpiry(t *testing.T) {
	var tokenCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			atomic.AddInt32(&tokenCalls, 1)
			return
		}
		assert.Equal(t, "Bearer stored-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"id":"42"}}`)
	}))
	defer server.Close()

	creds := social.Credentials{"access_token": "stored-token"}
	result := newTestClient(server.URL).Publish(context.Background(), "acct-1", creds, "hello", nil)

	require.True(t, result.Success, result.ErrorMessage)
	assert.EqualValues(t, 0, tokenCalls)
	assert.Nil(t, result.RefreshedCredentials)
}

func TestPublishRefreshFailureMessages(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer rejecting.Close()

	expired := testNow.Add(-time.Minute).Format(time.RFC3339)

	t.Run("no refresh token stored", func(t *testing.T) {
		creds := social.Credentials{"access_token": "tok", "expires_at": expired}
		result := newTestClient(rejecting.URL).Publish(context.Background(), "a", creds, "hi", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "No refresh token is stored for this X account")
	})

	t.Run("refresh unconfigured", func(t *testing.T) {
		client := New(Config{APIBaseURL: rejecting.URL, Now: fixedNow})
		creds := social.Credentials{"access_token": "tok", "refresh_token": "rt", "expires_at": expired}
		result := client.Publish(context.Background(), "a", creds, "hi", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "token refresh is not configured")
	})

	t.Run("refresh rejected by the API", func(t *testing.T) {
		creds := social.Credentials{"access_token": "tok", "refresh_token": "rt", "expires_at": expired}
		result := newTestClient(rejecting.URL).Publish(context.Background(), "a", creds, "hi", nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "X rejected the token refresh")
	})
}

func TestPublishRefreshedCredentialsOnlyOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			fmt.Fprint(w, `{"access_token":"new-access","token_type":"bearer"}`)
		case "/tweets":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"detail":"Duplicate content","title":"Forbidden"}`)
		}
	}))
	defer server.Close()

	creds := social.Credentials{
		"access_token":  "old",
		"refresh_token": "rt",
		"expires_at":    testNow.Add(-time.Minute).Format(time.RFC3339),
	}
	result := newTestClient(server.URL).Publish(context.Background(), "a", creds, "hi", nil)

	assert.False(t, result.Success)
	assert.Nil(t, result.RefreshedCredentials)
}

func TestExtractMediaID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"data id preferred", `{"data":{"id":"111","media_id_string":"222"},"media_id_string":"333"}`, "111"},
		{"top level media_id_string", `{"media_id_string":"333"}`, "333"},
		{"nested media_id_string", `{"data":{"media_id_string":"222"}}`, "222"},
		{"nested media_id as string", `{"data":{"media_id":"444"}}`, "444"},
		{"nested media_id as number", `{"data":{"media_id":1146654567674912769}}`, "1146654567674912769"},
		{"no recognized key", `{"data":{}}`, ""},
		{"not json", `oops`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMediaID([]byte(tt.body)))
		})
	}
}

func TestPublishUploadsImageThenPosts(t *testing.T) {
	var uploadedCategory, uploadedFilename string
	var uploadedBytes []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			uploadedCategory = r.FormValue("media_category")
			file, header, err := r.FormFile("media")
			require.NoError(t, err)
			defer file.Close()
			uploadedFilename = header.Filename
			uploadedBytes, _ = io.ReadAll(file)
			fmt.Fprint(w, `{"data":{"id":"media-1"}}`)
		case "/tweets":
			var payload struct {
				Text  string `json:"text"`
				Media struct {
					MediaIDs []string `json:"media_ids"`
				} `json:"media"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "with pic", payload.Text)
			assert.Equal(t, []string{"media-1"}, payload.Media.MediaIDs)
			fmt.Fprint(w, `{"data":{"id":"post-1"}}`)
		}
	}))
	defer server.Close()

	item := social.MediaItem{
		ID:       "item-1",
		Kind:     social.MediaImage,
		MimeType: "image/png",
		Contents: []byte("png-bytes"),
		Filename: "pic.png",
	}
	creds := social.Credentials{"access_token": "tok"}
	result := newTestClient(server.URL).Publish(context.Background(), "a", creds, "with pic", []social.MediaItem{item})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "post-1", result.PostID)
	assert.Equal(t, map[string]string{"item-1": "media-1"}, result.ProviderMediaIDs)
	assert.Equal(t, "tweet_image", uploadedCategory)
	assert.Equal(t, "pic.png", uploadedFilename)
	assert.Equal(t, []byte("png-bytes"), uploadedBytes)
}

func TestPublishGifUsesGifCategory(t *testing.T) {
	var category string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			category = r.FormValue("media_category")
			fmt.Fprint(w, `{"data":{"id":"m1"}}`)
		case "/tweets":
			fmt.Fprint(w, `{"data":{"id":"p1"}}`)
		}
	}))
	defer server.Close()

	item := social.MediaItem{ID: "i", Kind: social.MediaGif, MimeType: "image/gif", Contents: []byte("gif"), Filename: "fun.gif"}
	result := newTestClient(server.URL).Publish(context.Background(), "a", social.Credentials{"access_token": "t"}, "gif", []social.MediaItem{item})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "tweet_gif", category)
}

func TestPublishMediaFailureAbortsNamingFile(t *testing.T) {
	var tweetCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, header, err := r.FormFile("media")
			require.NoError(t, err)
			if header.Filename == "bad.png" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"data":{"id":"m1"}}`)
		case "/tweets":
			atomic.AddInt32(&tweetCalls, 1)
		}
	}))
	defer server.Close()

	media := []social.MediaItem{
		{ID: "1", Kind: social.MediaImage, Contents: []byte("a"), Filename: "good.png"},
		{ID: "2", Kind: social.MediaImage, Contents: []byte("b"), Filename: "bad.png"},
	}
	result := newTestClient(server.URL).Publish(context.Background(), "a", social.Credentials{"access_token": "t"}, "hi", media)

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to upload media: bad.png", result.ErrorMessage)
	assert.EqualValues(t, 0, tweetCalls)
}

type chunkedRecorder struct {
	initForm  map[string]string
	appends   []appendedSegment
	finalizes int32
}

type appendedSegment struct {
	index string
	data  []byte
}

func newChunkedServer(t *testing.T, rec *chunkedRecorder, failSegment string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/upload":
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				require.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "APPEND", r.FormValue("command"))
				assert.Equal(t, "vid-1", r.FormValue("media_id"))
				index := r.FormValue("segment_index")
				if failSegment != "" && index == failSegment {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				data, err := base64.StdEncoding.DecodeString(r.FormValue("media_data"))
				require.NoError(t, err)
				rec.appends = append(rec.appends, appendedSegment{index: index, data: data})
				return
			}
			require.NoError(t, r.ParseForm())
			switch r.PostFormValue("command") {
			case "INIT":
				rec.initForm = map[string]string{
					"media_type":     r.PostFormValue("media_type"),
					"total_bytes":    r.PostFormValue("total_bytes"),
					"media_category": r.PostFormValue("media_category"),
				}
				fmt.Fprint(w, `{"media_id_string":"vid-1"}`)
			case "FINALIZE":
				assert.Equal(t, "vid-1", r.PostFormValue("media_id"))
				atomic.AddInt32(&rec.finalizes, 1)
				fmt.Fprint(w, `{"media_id_string":"vid-1"}`)
			default:
				t.Errorf("unexpected command %q", r.PostFormValue("command"))
			}
		case "/tweets":
			fmt.Fprint(w, `{"data":{"id":"post-9"}}`)
		}
	}))
}

func TestPublishVideoChunkedUpload(t *testing.T) {
	rec := &chunkedRecorder{}
	server := newChunkedServer(t, rec, "")
	defer server.Close()

	client := newTestClient(server.URL)
	client.chunkSize = 4

	contents := []byte("0123456789")
	item := social.MediaItem{
		ID:        "vid",
		Kind:      social.MediaVideo,
		MimeType:  "video/mp4",
		Contents:  contents,
		SizeBytes: len(contents),
		Filename:  "clip.mp4",
	}
	result := client.Publish(context.Background(), "a", social.Credentials{"access_token": "t"}, "video", []social.MediaItem{item})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "post-9", result.PostID)
	assert.Equal(t, map[string]string{"vid": "vid-1"}, result.ProviderMediaIDs)

	assert.Equal(t, map[string]string{
		"media_type":     "video/mp4",
		"total_bytes":    "10",
		"media_category": "amplify_video",
	}, rec.initForm)

	require.Len(t, rec.appends, 3)
	assert.Equal(t, appendedSegment{index: "0", data: []byte("0123")}, rec.appends[0])
	assert.Equal(t, appendedSegment{index: "1", data: []byte("4567")}, rec.appends[1])
	assert.Equal(t, appendedSegment{index: "2", data: []byte("89")}, rec.appends[2])
	assert.EqualValues(t, 1, rec.finalizes)
}

func TestPublishVideoAppendFailureSkipsFinalize(t *testing.T) {
	rec := &chunkedRecorder{}
	server := newChunkedServer(t, rec, "1")
	defer server.Close()

	client := newTestClient(server.URL)
	client.chunkSize = 4

	contents := []byte("0123456789")
	item := social.MediaItem{
		ID:        "vid",
		Kind:      social.MediaVideo,
		MimeType:  "video/mp4",
		Contents:  contents,
		SizeBytes: len(contents),
		Filename:  "clip.mp4",
	}
	result := client.Publish(context.Background(), "a", social.Credentials{"access_token": "t"}, "video", []social.MediaItem{item})

	assert.False(t, result.Success)
	assert.Equal(t, "Failed to upload media: clip.mp4", result.ErrorMessage)
	assert.EqualValues(t, 0, rec.finalizes)
	require.Len(t, rec.appends, 1)
	assert.Equal(t, "0", rec.appends[0].index)
}

func TestCreatePostErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail preferred over title", `{"detail":"You are not allowed to create a Tweet with duplicate content.","title":"Forbidden"}`, "You are not allowed to create a Tweet with duplicate content."},
		{"title when no detail", `{"title":"Unauthorized"}`, "Unauthorized"},
		{"status fallback", `{}`, "Unknown x API error (HTTP 403)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			result := newTestClient(server.URL).PublishText(context.Background(), "a", social.Credentials{"access_token": "t"}, "hi")
			assert.False(t, result.Success)
			assert.Equal(t, tt.want, result.ErrorMessage)
		})
	}
}

func TestPublishRejectsMissingAccessToken(t *testing.T) {
	result := newTestClient("http://unused.invalid").PublishText(context.Background(), "a", social.Credentials{}, "hi")
	assert.False(t, result.Success)
	assert.Equal(t, "Missing required credential: access_token", result.ErrorMessage)
}

func TestCredentialFields(t *testing.T) {
	fields := newTestClient("").CredentialFields()
	require.NotEmpty(t, fields)
	assert.Equal(t, "access_token", fields[0].Key)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "password", fields[0].InputType)
}
