package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Seed identities. The primary user owns one bank account and is the sender
// of SeedTransactionID.
const (
	SeedUsername      = "testuser"
	SeedPassword      = "password123"
	SeedUserID        = "t45AiwidW"
	SeedFirstName     = "Edgar"
	SeedLastName      = "Johns"
	SeedPhoneNumber   = "625-316-9882"
	SeedBalance       = 168137
	SeedBankAccountID = "RskoB7r4Bic"
	SeedTransactionID = "183VHWyuQMS"
	SeedAmount        = 3350

	OtherUsername  = "Tavares_Barrows"
	OtherUserID    = "qywYp6hS0U"
	OtherFirstName = "Arely"
	OtherLastName  = "Kertzmann"
)

const seedTime = "2024-01-01T00:00:00.000Z"

// SeedDocument returns the seed datastore document. Passwords are bcrypt
// hashes of SeedPassword at minimum cost.
func SeedDocument(t testing.TB) map[string][]map[string]any {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := func(id, first, last, username, phone string, balance int) map[string]any {
		return map[string]any{
			"id":                  id,
			"uuid":                id + "-uuid",
			"firstName":           first,
			"lastName":            last,
			"username":            username,
			"password":            string(hash),
			"email":               username + "@example.com",
			"phoneNumber":         phone,
			"avatar":              "https://avatars.example.com/" + id + ".png",
			"defaultPrivacyLevel": "public",
			"balance":             balance,
			"createdAt":           seedTime,
			"modifiedAt":          seedTime,
		}
	}

	return map[string][]map[string]any{
		"users": {
			user(SeedUserID, SeedFirstName, SeedLastName, SeedUsername, SeedPhoneNumber, SeedBalance),
			user(OtherUserID, OtherFirstName, OtherLastName, OtherUsername, "498-555-0143", 150840),
			user("uBmeaz5pX", "Kaden", "Dietrich", "Katharina_Bernier", "277-555-0110", 92310),
		},
		"transactions": {
			{
				"id":            SeedTransactionID,
				"uuid":          SeedTransactionID + "-uuid",
				"senderId":      SeedUserID,
				"receiverId":    OtherUserID,
				"amount":        SeedAmount,
				"description":   "Payment: " + SeedUserID + " to " + OtherUserID,
				"privacyLevel":  "public",
				"status":        "complete",
				"requestStatus": "",
				"createdAt":     seedTime,
				"modifiedAt":    seedTime,
			},
			{
				"id":            "GLsKsqXvx3",
				"uuid":          "GLsKsqXvx3-uuid",
				"senderId":      OtherUserID,
				"receiverId":    SeedUserID,
				"amount":        12000,
				"description":   "Request: " + OtherUserID + " to " + SeedUserID,
				"privacyLevel":  "private",
				"status":        "pending",
				"requestStatus": "pending",
				"createdAt":     seedTime,
				"modifiedAt":    seedTime,
			},
		},
		"bankAccounts": {
			{
				"id":            SeedBankAccountID,
				"uuid":          SeedBankAccountID + "-uuid",
				"userId":        SeedUserID,
				"bankName":      "O'Hara - Labadie Bank",
				"accountNumber": "6123387981",
				"routingNumber": "851823229",
				"isDeleted":     false,
				"createdAt":     seedTime,
				"modifiedAt":    seedTime,
			},
			{
				"id":            "lHeTvqjZ1",
				"uuid":          "lHeTvqjZ1-uuid",
				"userId":        OtherUserID,
				"bankName":      "Kihn - Heller Bank",
				"accountNumber": "4418532267",
				"routingNumber": "122105155",
				"isDeleted":     false,
				"createdAt":     seedTime,
				"modifiedAt":    seedTime,
			},
		},
		"comments": {
			{
				"id":            "pE7wHmTo2Ax",
				"uuid":          "pE7wHmTo2Ax-uuid",
				"userId":        OtherUserID,
				"transactionId": "GLsKsqXvx3",
				"content":       "Thanks for lunch",
				"createdAt":     seedTime,
				"modifiedAt":    seedTime,
			},
		},
	}
}

// WriteDatastore writes doc as database.json under dir and returns its path.
func WriteDatastore(t testing.TB, dir string, doc any) string {
	t.Helper()
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "database.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// SeedDatastore writes the seed document to a fresh temp dir.
func SeedDatastore(t testing.TB) string {
	t.Helper()
	return WriteDatastore(t, t.TempDir(), SeedDocument(t))
}

// SeedUsers writes a users fixture mapping the "testuser" alias to the seed
// credentials and returns its path.
func SeedUsers(t testing.TB, dir string) string {
	t.Helper()
	users := map[string]map[string]string{
		"testuser": {"username": SeedUsername, "password": SeedPassword},
		"other":    {"username": OtherUsername, "password": SeedPassword},
	}
	data, err := json.MarshalIndent(users, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "users.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
