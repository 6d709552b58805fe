package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/syndicate/internal/social"
)

func TestNewResolvesEveryKnownProvider(t *testing.T) {
	for _, provider := range social.Known() {
		client, err := New(provider, Options{})
		require.NoError(t, err, provider)
		assert.Equal(t, provider, client.Provider())
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(social.Provider("friendster"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "friendster")
}

func TestAllCoversRegistry(t *testing.T) {
	clients := All(Options{})
	require.Len(t, clients, len(social.Known()))
	for _, provider := range social.Known() {
		assert.Contains(t, clients, provider)
	}
}

func TestCredentialFields(t *testing.T) {
	fields, err := CredentialFields(social.ProviderBluesky)
	require.NoError(t, err)
	require.NotEmpty(t, fields)
	assert.Equal(t, "handle", fields[0].Key)

	_, err = CredentialFields(social.Provider("nope"))
	assert.Error(t, err)
}
