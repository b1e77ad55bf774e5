package fixture

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestLoad_SeedDatastore(t *testing.T) {
	path := testutil.SeedDatastore(t)

	snap, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, snap.Path)
	assert.Len(t, snap.Users, 3)
	assert.Len(t, snap.Transactions, 2)
	assert.Len(t, snap.BankAccounts, 2)
	assert.Len(t, snap.Comments, 1)

	user, err := snap.UserByUsername(testutil.SeedUsername)
	require.NoError(t, err)
	assert.Equal(t, testutil.SeedUserID, user.ID)
	assert.Equal(t, int64(testutil.SeedBalance), user.Balance)
	assert.Equal(t, testutil.SeedPhoneNumber, user.PhoneNumber)
	assert.Equal(t, "Edgar Johns", user.FullName())

	tx, err := snap.TransactionByID(testutil.SeedTransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(testutil.SeedAmount), tx.Amount)
	assert.Equal(t, testutil.OtherUserID, tx.ReceiverID)
}

func TestLoad_RawRecordsKeepNumbers(t *testing.T) {
	snap, err := Load(testutil.SeedDatastore(t))
	require.NoError(t, err)

	rec, idx, err := snap.FindRecord(CollectionUsers, func(r Record) bool {
		return r["id"] == testutil.SeedUserID
	})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, json.Number("168137"), rec["balance"])
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")

	_, err := Load(path)
	require.Error(t, err)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, path, ioErr.Path)
	assert.Equal(t, "file not found", ioErr.Reason)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users": [`), 0o644))

	_, err := Load(path)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "malformed JSON", ioErr.Reason)
	assert.Equal(t, path, ioErr.Path)
}

func TestTorn(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"users": [{"id": "t45A`), 0o644))

	for _, path := range []string{empty, partial} {
		_, err := Load(path)
		assert.True(t, Torn(err), path)
	}

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.False(t, Torn(err))

	doc := testutil.SeedDocument(t)
	delete(doc, CollectionUsers)
	_, err = Load(testutil.WriteDatastore(t, t.TempDir(), doc))
	assert.False(t, Torn(err))
	assert.False(t, Torn(nil))
}

func TestLoad_MissingCollection(t *testing.T) {
	doc := testutil.SeedDocument(t)
	delete(doc, CollectionComments)
	path := testutil.WriteDatastore(t, t.TempDir(), doc)

	_, err := Load(path)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Contains(t, ioErr.Reason, `missing collection "comments"`)
}

func TestLoad_SchemaViolationIsHardFailure(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		mutate     func(map[string]any)
		reason     string
	}{
		{
			name:       "missing bank account field",
			collection: CollectionBankAccounts,
			mutate:     func(r map[string]any) { delete(r, "routingNumber") },
			reason:     "bankAccounts[0] violates schema",
		},
		{
			name:       "fractional balance",
			collection: CollectionUsers,
			mutate:     func(r map[string]any) { r["balance"] = 12.5 },
			reason:     "users[0] violates schema",
		},
		{
			name:       "amount as string",
			collection: CollectionTransactions,
			mutate:     func(r map[string]any) { r["amount"] = "3350" },
			reason:     "transactions[0] violates schema",
		},
		{
			name:       "comment without content",
			collection: CollectionComments,
			mutate:     func(r map[string]any) { delete(r, "content") },
			reason:     "comments[0] violates schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testutil.SeedDocument(t)
			tt.mutate(doc[tt.collection][0])
			path := testutil.WriteDatastore(t, t.TempDir(), doc)

			snap, err := Load(path)
			assert.Nil(t, snap)
			var ioErr *IOError
			require.True(t, errors.As(err, &ioErr))
			assert.Equal(t, tt.reason, ioErr.Reason)
		})
	}
}

func TestLoad_ExtraFieldsAllowed(t *testing.T) {
	doc := testutil.SeedDocument(t)
	doc[CollectionUsers][0]["nickname"] = "ed"
	path := testutil.WriteDatastore(t, t.TempDir(), doc)

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ed", snap.Records(CollectionUsers)[0]["nickname"])
}

func TestLoadUsers(t *testing.T) {
	path := testutil.SeedUsers(t, t.TempDir())

	users, err := LoadUsers(path)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: testutil.SeedUsername, Password: testutil.SeedPassword}, users["testuser"])
	assert.Contains(t, users, "other")
}

func TestLoadUsers_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadUsers(filepath.Join(dir, "missing.json"))
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "file not found", ioErr.Reason)

	noName := filepath.Join(dir, "users.json")
	require.NoError(t, os.WriteFile(noName, []byte(`{"testuser": {"password": "x"}}`), 0o644))
	_, err = LoadUsers(noName)
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, `user "testuser" has no username`, ioErr.Reason)
}
