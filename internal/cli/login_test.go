package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestLoginDefaultUser(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewLoginCommand(f.rootOpts("text")))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ logged in as testuser (testuser)")
	assert.Contains(t, out, "cookie:    connect.sid")
	assert.Contains(t, out, "checkAuth: 200")
	assert.NotContains(t, out, "value:")
	assert.Equal(t, []string{"POST /login", "GET /checkAuth"}, f.app.Requests())
}

func TestLoginJSONWithCookieAndLogout(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewLoginCommand(f.rootOpts("json")), "other", "--show-cookie", "--logout")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "other", resp.Data.Alias)
	assert.Equal(t, testutil.OtherUsername, resp.Data.Username)
	assert.Equal(t, "s:rec-1", resp.Data.Value)
	assert.Equal(t, 200, resp.Data.CheckAuth)
	assert.True(t, resp.Data.LoggedOut)
	assert.Equal(t, []string{"POST /login", "GET /checkAuth", "POST /logout"}, f.app.Requests())
}

func TestLoginUnknownAlias(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewLoginCommand(f.rootOpts("text")), "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `no user "ghost"`)
	assert.Empty(t, f.app.Requests())
}

func TestLoginRejected(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	users := filepath.Join(f.dir, "bad-users.json")
	writeFile(t, users, `{"testuser": {"username": "testuser", "password": "wrong"}}`)
	opts := f.rootOpts("text")
	opts.Users = users

	out, err := execute(NewLoginCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeAuth)
	assert.Contains(t, out, "Error [E030]")
	assert.Equal(t, []string{"POST /login"}, f.app.Requests())
}

func TestLoginUnreachable(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})
	opts := f.rootOpts("text")
	f.app.Close()

	_, err := execute(NewLoginCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeRequest)
}
