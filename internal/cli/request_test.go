package cli

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestRequestGet(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewRequestCommand(f.rootOpts("text")), "get", "/bankaccounts")
	require.NoError(t, err)
	assert.Contains(t, out, "GET /bankaccounts -> 200")
	assert.Contains(t, out, `"bankName": "O'Hara - Labadie Bank"`)
	assert.Equal(t, []string{"POST /login", "GET /bankaccounts"}, f.app.Requests())
}

func TestRequestPostJSON(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewRequestCommand(f.rootOpts("json")),
		"POST", "/comments/"+testutil.SeedTransactionID,
		"--body", `{"transactionId":"183VHWyuQMS","content":"from the cli"}`)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   RequestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.Data.Status)
	assert.Equal(t, 1, resp.Data.Attempts)

	var body struct {
		Comment map[string]any `json:"comment"`
	}
	require.NoError(t, json.Unmarshal(resp.Data.Body, &body))
	assert.Equal(t, "from the cli", body.Comment["content"])
	assert.Equal(t, testutil.SeedUserID, body.Comment["userId"])

	data, err := os.ReadFile(f.datastore)
	require.NoError(t, err)
	assert.Contains(t, string(data), "from the cli")
}

func TestRequestGraphQLKnownOperation(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewRequestCommand(f.rootOpts("text")),
		"--graphql", "CreateBankAccount",
		"--vars", `{"bankName":"CLI Bank","accountNumber":"123456789","routingNumber":"987654321"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "POST /graphql -> 200")
	assert.Contains(t, out, `"bankName": "CLI Bank"`)
}

func TestRequestGraphQLUnknownOperation(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	_, err := execute(NewRequestCommand(f.rootOpts("text")), "--graphql", "ListNotifications")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "pass --query")
	assert.Empty(t, f.app.Requests())
}

func TestRequestNon2xx(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewRequestCommand(f.rootOpts("text")), "GET", "/users/profile/nobody")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "GET /users/profile/nobody -> 404")
	assert.Contains(t, out, "Not Found")
}

func TestRequestAnonymous(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	out, err := execute(NewRequestCommand(f.rootOpts("text")), "--anonymous", "GET", "/checkAuth")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "GET /checkAuth -> 401")
	assert.Equal(t, []string{"GET /checkAuth"}, f.app.Requests())
}

func TestRequestArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing_path", []string{"GET"}},
		{"graphql_with_args", []string{"--graphql", "CreateBankAccount", "GET", "/users"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewRequestCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
		})
	}
}

func TestRequestInvalidBody(t *testing.T) {
	f := newCLIFixture(t, testutil.BankAppOptions{})

	_, err := execute(NewRequestCommand(f.rootOpts("text")), "POST", "/comments/x", "--body", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, f.app.Requests())
}
