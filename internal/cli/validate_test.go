package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestValidateValid(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	f.writeScenario(t, "list_bank_accounts", listBankAccountsScenario)
	f.writeScenario(t, "create_comment", createCommentScenario)

	out, err := execute(NewValidateCommand(f.rootOpts("text")), f.scenariosDir())
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 scenario(s), 2 user(s), datastore valid")
}

func TestValidateValidJSON(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	f.writeScenario(t, "list_bank_accounts", listBankAccountsScenario)

	out, err := execute(NewValidateCommand(f.rootOpts("json")), f.scenariosDir())
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Scenarios)
	assert.Equal(t, map[string]int{"users": 3, "transactions": 2, "bankAccounts": 2, "comments": 1}, resp.Data.Counts)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	f.writeScenario(t, "list_bank_accounts", listBankAccountsScenario)
	f.writeScenario(t, "broken", "name: broken\nassertion: []\n")
	f.writeScenario(t, "ghost", `name: ghost
description: logs in as an alias missing from users.json
user: ghost
flow:
  - request: GET /users
assertions:
  - type: status
    status: 200
`)
	f.writeScenario(t, "duplicate", listBankAccountsScenario)

	out, err := execute(NewValidateCommand(f.rootOpts("json")), f.scenariosDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 3 error(s)")

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var messages []string
	for _, e := range resp.Data.Errors {
		messages = append(messages, e.Code+" "+filepath.Base(e.Target)+" "+e.Message)
	}
	require.Len(t, messages, 3)
	assert.Contains(t, messages[0], "E020 broken.yaml")
	assert.Contains(t, messages[1], `scenario name "list_bank_accounts" already used by`)
	assert.Contains(t, messages[2], `E011 ghost.yaml user "ghost" not in`)
}

func TestValidateUnknownDatastoreUser(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	f.writeScenario(t, "list_bank_accounts", listBankAccountsScenario)
	users := filepath.Join(f.dir, "users-extra.json")
	require.NoError(t, os.WriteFile(users, []byte(`{
  "testuser": {"username": "testuser", "password": "password123"},
  "nobody": {"username": "Nobody_Here", "password": "x"}
}`), 0o644))
	opts := f.rootOpts("text")
	opts.Users = users

	out, err := execute(NewValidateCommand(opts), f.scenariosDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "nobody")
	assert.Contains(t, out, `username "Nobody_Here" not found in datastore`)
}

func TestValidateBrokenDatastore(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	f.writeScenario(t, "list_bank_accounts", listBankAccountsScenario)
	broken := filepath.Join(f.dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"users": []}`), 0o644))
	opts := f.rootOpts("text")
	opts.Datastore = broken

	out, err := execute(NewValidateCommand(opts), f.scenariosDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E010")
	assert.Contains(t, out, `missing collection "transactions"`)
}

func TestValidateNonExistentPath(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewValidateCommand(f.rootOpts("text")), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, out, "not found")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", filepath.Join("nested", "c.yaml")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0o644))
	}

	files, err := findScenarioFiles([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.yml", filepath.Base(files[0]))
	assert.Equal(t, "b.yaml", filepath.Base(files[1]))
	assert.Equal(t, filepath.Join(sub, "c.yaml"), files[2])
}
