package accounts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/syndicate/internal/oauth"
	"github.com/blacktop/syndicate/internal/social"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "nested", "accounts.json"))
}

func xAccount(ref, externalID, display string) oauth.Account {
	return oauth.Account{
		AccountRef:  ref,
		Provider:    social.ProviderX,
		DisplayName: display,
		ExternalID:  externalID,
		Credentials: social.Credentials{"access_token": "tok-" + ref},
	}
}

func TestListEmptyStore(t *testing.T) {
	store := newTempStore(t)

	all, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveAndList(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-1", "100", "@alice")))
	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-2", "200", "@bob")))

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "@alice", all[0].DisplayName)
	assert.Equal(t, "@bob", all[1].DisplayName)
}

func TestSaveReconnectKeepsAccountRef(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-1", "100", "@alice")))

	// reconnecting the same X user arrives with a fresh ref
	replacement := xAccount("ref-fresh", "100", "@alice_renamed")
	require.NoError(t, store.SaveAccount(ctx, replacement))

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ref-1", all[0].AccountRef)
	assert.Equal(t, "@alice_renamed", all[0].DisplayName)
	assert.Equal(t, "tok-ref-fresh", all[0].Credentials.Get("access_token"))
}

func TestFind(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-1", "100", "@alice")))
	bsky := oauth.Account{
		AccountRef:  "ref-2",
		Provider:    social.ProviderBluesky,
		DisplayName: "alice.bsky.social",
		ExternalID:  "did:plc:alice",
	}
	require.NoError(t, store.SaveAccount(ctx, bsky))

	byRef, err := store.Find("ref-1")
	require.NoError(t, err)
	assert.Equal(t, "@alice", byRef.DisplayName)

	byDisplay, err := store.Find("alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "ref-2", byDisplay.AccountRef)

	// a bare provider name works while it is unambiguous
	byProvider, err := store.Find("x")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", byProvider.AccountRef)

	_, err = store.Find("ref-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindAmbiguousProvider(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-1", "100", "@alice")))
	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-2", "200", "@bob")))

	_, err := store.Find("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account ref")
}

func TestUpdateCredentials(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, xAccount("ref-1", "100", "@alice")))

	fresh := social.Credentials{"access_token": "rotated"}
	require.NoError(t, store.UpdateCredentials(ctx, "ref-1", fresh))

	// the stored copy is independent of the caller's bag
	fresh["access_token"] = "mutated-after-save"

	account, err := store.Find("ref-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", account.Credentials.Get("access_token"))

	assert.ErrorIs(t, store.UpdateCredentials(ctx, "ref-404", fresh), ErrNotFound)
}

func TestReadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path).List()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse accounts file")
}

func TestWritePermissions(t *testing.T) {
	store := newTempStore(t)
	require.NoError(t, store.SaveAccount(context.Background(), xAccount("ref-1", "100", "@alice")))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
