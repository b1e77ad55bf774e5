package fixture

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestStore_ReloadUnchangedFileIsIdempotent(t *testing.T) {
	store, err := Open(testutil.SeedDatastore(t))
	require.NoError(t, err)
	first := store.Snapshot()

	second, err := store.Reload(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, int64(1), first.Generation)
	assert.Equal(t, int64(2), second.Generation)
	assert.Same(t, second, store.Snapshot())
}

func TestStore_ReloadReplacesSnapshot(t *testing.T) {
	dir := t.TempDir()
	doc := testutil.SeedDocument(t)
	path := testutil.WriteDatastore(t, dir, doc)

	store, err := Open(path)
	require.NoError(t, err)
	before := store.Snapshot()

	doc[CollectionUsers][0]["phoneNumber"] = "555-0100"
	testutil.WriteDatastore(t, dir, doc)

	after, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, before.Equal(after))

	user, err := after.UserByID(testutil.SeedUserID)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", user.PhoneNumber)

	// The old snapshot is a value and is not touched by the reload.
	old, err := before.UserByID(testutil.SeedUserID)
	require.NoError(t, err)
	assert.Equal(t, testutil.SeedPhoneNumber, old.PhoneNumber)
}

func TestStore_FailedReloadKeepsPrevious(t *testing.T) {
	path := testutil.SeedDatastore(t)
	store, err := Open(path)
	require.NoError(t, err)
	before := store.Snapshot()

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	snap, err := store.Reload(context.Background())
	assert.Nil(t, snap)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Same(t, before, store.Snapshot())
}

func TestStore_ReloadHonoursContext(t *testing.T) {
	store := NewStore(testutil.SeedDatastore(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Reload(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store.Snapshot())
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(t.TempDir() + "/database.json")
	var ioErr *IOError
	assert.True(t, errors.As(err, &ioErr))
}

func TestStore_WatchSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	doc := testutil.SeedDocument(t)
	path := testutil.WriteDatastore(t, dir, doc)
	store := NewStore(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Watch(ctx)
	require.NoError(t, err)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(dir+"/other.json", []byte("{}"), 0o644))
	testutil.WriteDatastore(t, dir, doc)

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after datastore write")
	}
}
