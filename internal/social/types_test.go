package social

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderValid(t *testing.T) {
	for _, provider := range Known() {
		assert.True(t, provider.Valid(), provider)
	}
	assert.False(t, Provider("myspace").Valid())
	assert.False(t, Provider("").Valid())
}

func TestCredentialsClone(t *testing.T) {
	original := Credentials{"access_token": "a", "refresh_token": "b"}
	clone := original.Clone()

	clone["access_token"] = "changed"
	assert.Equal(t, "a", original.Get("access_token"))
	assert.Equal(t, "b", clone.Get("refresh_token"))
}

func TestCredentialsGetAbsent(t *testing.T) {
	var creds Credentials
	assert.Empty(t, creds.Get("anything"))
}

func TestPublishResultConstructors(t *testing.T) {
	success := Published("post-1", map[string]string{"a": "m1"}, Credentials{"access_token": "t"})
	assert.True(t, success.Success)
	assert.Equal(t, "post-1", success.PostID)
	assert.Empty(t, success.ErrorMessage)

	failure := Failed(errors.New("boom"))
	assert.False(t, failure.Success)
	assert.Equal(t, "boom", failure.ErrorMessage)
	assert.Nil(t, failure.RefreshedCredentials)

	formatted := Failedf("bad %s (%d)", "thing", 7)
	assert.Equal(t, "bad thing (7)", formatted.ErrorMessage)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Missing required credential: handle",
		CredentialValidationError{Field: "handle"}.Error())

	assert.Equal(t, "Failed to upload image to Bluesky: pic.png",
		UploadError{Provider: ProviderBluesky, Filename: "pic.png"}.Error())
	assert.Equal(t, "Failed to upload media: clip.mp4",
		UploadError{Provider: ProviderX, Filename: "clip.mp4"}.Error())

	withMessage := PublishAPIError{Provider: ProviderX, Message: "Duplicate content", Status: 403}
	assert.Equal(t, "Duplicate content", withMessage.Error())

	withoutMessage := PublishAPIError{Provider: ProviderX, Status: 500}
	assert.Equal(t, "Unknown x API error (HTTP 500)", withoutMessage.Error())

	require.Contains(t, UnsupportedFeatureError{Provider: ProviderBluesky, Feature: "video publishing"}.Error(),
		"not yet implemented")
}
