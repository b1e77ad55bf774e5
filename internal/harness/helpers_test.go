package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/session"
	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

// testEnv is a fake application with a runner pointed at it.
type testEnv struct {
	app    *testutil.BankApp
	path   string
	store  *fixture.Store
	clock  *testutil.FakeClock
	runner *Runner
}

func newTestEnv(t *testing.T, appOpts testutil.BankAppOptions, opts ...Option) *testEnv {
	t.Helper()

	path := testutil.SeedDatastore(t)
	app := testutil.NewBankApp(t, path, appOpts)
	users, err := fixture.LoadUsers(testutil.SeedUsers(t, t.TempDir()))
	require.NoError(t, err)

	env := &testEnv{
		app:   app,
		path:  path,
		store: fixture.NewStore(path),
		clock: testutil.NewFakeClock(time.Time{}),
	}
	factory := func() (*session.Client, error) {
		return session.New(app.URL(), session.WithRetryDelay(time.Millisecond))
	}
	base := []Option{
		WithClock(env.clock),
		WithVerifyPolicy(VerifyPolicy{Attempts: 3, Backoff: 100 * time.Millisecond}),
	}
	env.runner = NewRunner(env.store, users, factory, append(base, opts...)...)
	return env
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return sc
}

const listBankAccountsYAML = `
name: list_bank_accounts
description: "Bank accounts list returns every required field"
user: testuser
flow:
  - name: list
    request: GET /bankaccounts
    expect:
      status: 200
assertions:
  - type: status
    step: list
    status: 200
  - type: response_schema
    step: list
    path: results
    each: true
    schema: "#BankAccount"
  - type: trace_order
    requests: ["POST /login", "GET /bankaccounts"]
`
