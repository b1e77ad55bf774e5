package harness

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/session"
	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

func TestRun_ListBankAccounts(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []State
	)
	env := newTestEnv(t, testutil.BankAppOptions{}, WithObserver(func(_ string, _, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, to)
	}))

	result, err := env.runner.Run(context.Background(), mustParse(t, listBankAccountsYAML))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, KindNone, result.Kind)
	assert.Len(t, result.Trace, 2)
	assert.Equal(t, []State{StateAuthenticating, StateReady, StateExecuting, StateVerifying, StateIdle}, transitions)
	assert.Equal(t, StateIdle, env.runner.State())
	assert.Zero(t, result.Attempts)
}

func TestRun_InvalidCredentialsIsFatal(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: bad_login
description: "Wrong password"
flow:
  - login: { username: testuser, password: wrong }
  - request: GET /users
assertions:
  - type: trace_count
    request: GET /users
    count: 0
`)
	result, err := env.runner.Run(context.Background(), sc)

	var authErr *session.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.False(t, result.Pass)
	assert.Equal(t, KindAuth, result.Kind)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 401, result.Trace[0].Status)
	assert.Equal(t, []string{"POST /login"}, env.app.Requests())
}

func TestRun_UnknownUserAlias(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, listBankAccountsYAML)
	sc.User = "nobody"
	result, err := env.runner.Run(context.Background(), sc)

	assert.True(t, Fatal(err))
	assert.Equal(t, KindAuth, result.Kind)
	assert.Empty(t, env.app.Requests())
}

func TestRun_MissingDatastoreIsFatal(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})
	require.NoError(t, os.Remove(env.path))

	result, err := env.runner.Run(context.Background(), mustParse(t, listBankAccountsYAML))

	var ioErr *fixture.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, KindIO, result.Kind)
	assert.Empty(t, result.Trace)
}

func TestRun_CommentIsPersisted(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: create_comment
description: "Comment appears in the datastore"
user: testuser
vars:
  tx: 183VHWyuQMS
  content: xyz random words
flow:
  - name: comment
    request: "POST /comments/{{ .Vars.tx }}"
    body:
      transactionId: "{{ .Vars.tx }}"
      content: "{{ .Vars.content }}"
assertions:
  - type: persisted
    collection: comments
    where: { transactionId: "{{ .Vars.tx }}" }
    expect:
      content: "{{ .Vars.content }}"
      userId: "{{ .User.ID }}"
  - type: trace_contains
    request: POST /comments/183VHWyuQMS
    status: 200
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Attempts)
	require.NotNil(t, result.Snapshot)
	assert.Len(t, result.Snapshot.Comments, 2)
	assert.Empty(t, env.clock.Sleeps())
}

func TestRun_DroppedWriteTimesOut(t *testing.T) {
	rec := &pollRecorder{}
	env := newTestEnv(t, testutil.BankAppOptions{DropWrites: true}, WithPollRecorder(rec))

	sc := mustParse(t, `
name: update_phone
description: "Phone number change is persisted"
user: testuser
flow:
  - request: "PATCH /users/{{ .User.ID }}"
    body: { phoneNumber: "555-0100" }
    expect: { status: 204 }
assertions:
  - type: persisted
    collection: users
    where: { id: "{{ .User.ID }}" }
    expect: { phoneNumber: "555-0100" }
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, KindVerification, result.Kind)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Errors[0], "persisted state not observed after 3 reload(s)")
	assert.Contains(t, result.Errors[0], "625-316-9882")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, env.clock.Sleeps())

	// The last snapshot read is attached to the result.
	require.NotNil(t, result.Snapshot)
	user, err := result.Snapshot.UserByID(testutil.SeedUserID)
	require.NoError(t, err)
	assert.Equal(t, testutil.SeedPhoneNumber, user.PhoneNumber)

	assert.Equal(t, []pollOutcome{{attempts: 3, satisfied: false}}, rec.outcomes)
}

func TestRun_DelayedWriteIsObserved(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{WriteDelay: 100 * time.Millisecond},
		WithClock(systemClock{}),
		WithVerifyPolicy(VerifyPolicy{Attempts: 40, Backoff: 25 * time.Millisecond}),
	)

	sc := mustParse(t, `
name: update_phone_delayed
description: "Phone number change lands after a delay"
user: testuser
flow:
  - request: "PATCH /users/{{ .User.ID }}"
    body: { phoneNumber: "555-0100" }
    expect: { status: 204 }
assertions:
  - type: persisted
    collection: users
    where: { username: testuser }
    expect: { phoneNumber: "555-0100" }
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Greater(t, result.Attempts, 1)
}

const tornCommentYAML = `
name: create_comment_torn
description: "Comment lands after the datastore was truncated"
user: testuser
flow:
  - request: POST /comments/183VHWyuQMS
    body: { transactionId: 183VHWyuQMS, content: "written in place" }
assertions:
  - type: persisted
    collection: comments
    where: { transactionId: 183VHWyuQMS }
    expect: { content: "written in place" }
`

func TestRun_TornReadKeepsPolling(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{TornWrites: true, WriteDelay: 150 * time.Millisecond},
		WithClock(systemClock{}),
		WithVerifyPolicy(VerifyPolicy{Attempts: 30, Backoff: 20 * time.Millisecond}),
	)

	result, err := env.runner.Run(context.Background(), mustParse(t, tornCommentYAML))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, KindNone, result.Kind)
	assert.Greater(t, result.Attempts, 1)
	require.NotNil(t, result.Snapshot)
	assert.Len(t, result.Snapshot.Comments, 2)
}

func TestRun_TornReadOnLastAttemptIsFatal(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{TornWrites: true, WriteDelay: time.Second},
		WithClock(systemClock{}),
		WithVerifyPolicy(VerifyPolicy{Attempts: 2, Backoff: 10 * time.Millisecond}),
	)

	result, err := env.runner.Run(context.Background(), mustParse(t, tornCommentYAML))

	var ioErr *fixture.IOError
	require.True(t, errors.As(err, &ioErr), "err: %v", err)
	assert.True(t, fixture.Torn(err))
	assert.Equal(t, KindIO, result.Kind)
	assert.False(t, result.Pass)
}

func TestRun_WatchWakesVerifier(t *testing.T) {
	path := testutil.SeedDatastore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := fixture.NewStore(path).Watch(ctx)
	require.NoError(t, err)

	app := testutil.NewBankApp(t, path, testutil.BankAppOptions{WriteDelay: 50 * time.Millisecond})
	users, err := fixture.LoadUsers(testutil.SeedUsers(t, t.TempDir()))
	require.NoError(t, err)
	runner := NewRunner(fixture.NewStore(path), users,
		func() (*session.Client, error) { return session.New(app.URL()) },
		WithVerifyPolicy(VerifyPolicy{Attempts: 2, Backoff: time.Minute}),
		WithScenarioTimeout(10*time.Second),
		WithChanges(changes),
	)

	sc := mustParse(t, `
name: delete_bank_account
description: "Soft delete is visible once the write lands"
user: testuser
flow:
  - request: DELETE /bankAccounts/RskoB7r4Bic
assertions:
  - type: persisted
    collection: bankAccounts
    where: { id: RskoB7r4Bic }
    expect: { isDeleted: true }
`)
	start := time.Now()
	result, err := runner.Run(ctx, sc)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 2, result.Attempts)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_ScenarioTimeout(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{DropWrites: true},
		WithClock(systemClock{}),
		WithVerifyPolicy(VerifyPolicy{Attempts: 1000, Backoff: 20 * time.Millisecond}),
	)

	sc := mustParse(t, `
name: timeout
description: "Scenario deadline ends polling"
user: testuser
timeout: 500ms
flow:
  - request: DELETE /bankAccounts/RskoB7r4Bic
assertions:
  - type: persisted
    collection: bankAccounts
    where: { id: RskoB7r4Bic }
    expect: { isDeleted: true }
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, KindVerification, result.Kind)
	assert.Contains(t, result.Errors[0], "context deadline exceeded")
}

func TestRun_CreateAndDeleteBankAccount(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: create_delete_bank_account
description: "Created account is soft deleted"
user: testuser
vars:
  bank: The Best Bank
flow:
  - name: create
    graphql: CreateBankAccount
    variables:
      bankName: "{{ .Vars.bank }}"
      accountNumber: "{{ digits 9 }}"
      routingNumber: "987654321"
    capture:
      accountId: data.createBankAccount.id
  - name: delete
    request: "DELETE /bankAccounts/{{ .Captured.accountId }}"
assertions:
  - type: response_schema
    step: create
    path: data.createBankAccount
    schema: "#CreatedBankAccount"
  - type: response_equals
    step: create
    path: data.createBankAccount.bankName
    equals: "{{ .Vars.bank }}"
  - type: persisted
    collection: bankAccounts
    where: { id: "{{ .Captured.accountId }}" }
    expect: { isDeleted: true, bankName: "{{ .Vars.bank }}", userId: "{{ .User.ID }}" }
  - type: trace_order
    requests: ["graphql CreateBankAccount", "DELETE /bankAccounts/{{ .Captured.accountId }}"]
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ProfileMatchesFixture(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: user_profile
description: "Profile matches the datastore"
user: testuser
flow:
  - name: profile
    request: GET /users/profile/Tavares_Barrows
assertions:
  - type: response_schema
    path: user
    schema: "#Profile"
  - type: response_equals
    path: user
    equals:
      firstName: '{{ (user "Tavares_Barrows").FirstName }}'
      lastName: '{{ (user "Tavares_Barrows").LastName }}'
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnexpectedStatusStopsFlow(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: missing_profile
description: "Unknown user"
user: testuser
flow:
  - request: GET /users/profile/nobody
    expect: { status: 200 }
  - request: GET /users
assertions:
  - type: trace_count
    request: GET /users
    count: 1
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, KindAssertion, result.Kind)
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: expect")
	assert.NotContains(t, env.app.Requests(), "GET /users")
}

func TestRun_NonSuccessWithoutExpectIsRequestFailure(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: missing_profile_default
description: "Unknown user without expect"
user: testuser
flow:
  - request: GET /users/profile/nobody
assertions:
  - type: status
    status: 404
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, result.Kind)
}

func TestRun_ExpectedErrorStatusPasses(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: anonymous_denied
description: "Bank accounts require a session"
flow:
  - name: list
    request: GET /bankaccounts
    expect: { status: 401 }
  - name: login
    request: POST /login
    anonymous: true
    body: { username: testuser, password: wrong, type: LOGIN }
    expect: { status: 401 }
assertions:
  - type: status
    step: list
    status: 401
  - type: trace_count
    request: POST /login
    count: 1
`)
	// No user is set, so the first request fails before reaching the app.
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, result.Kind)
	assert.Contains(t, result.Errors[0], "not authenticated")

	sc.Flow[0].Anonymous = true
	result, err = env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RegisterThenLogin(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: signup
description: "A new user can sign up and log in"
vars:
  username: "user{{ digits 6 }}"
flow:
  - request: POST /users
    anonymous: true
    body:
      firstName: Bob
      lastName: Ross
      username: "{{ .Vars.username }}"
      password: s3cret
    expect: { status: 201 }
  - login: { username: "{{ .Vars.username }}", password: s3cret }
  - name: me
    request: GET /checkAuth
  - logout: true
assertions:
  - type: response_equals
    step: me
    path: user.username
    equals: "{{ .Vars.username }}"
  - type: persisted
    collection: users
    where: { username: "{{ .Vars.username }}" }
    expect: { firstName: Bob, balance: 0 }
  - type: trace_order
    requests: ["POST /users", "POST /login", "GET /checkAuth", "POST /logout"]
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_GraphQLErrorsFailStep(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: unknown_operation
description: "GraphQL errors fail the step"
user: testuser
flow:
  - graphql: ListNotifications
    query: "query ListNotifications { listNotifications { id } }"
assertions:
  - type: status
    status: 200
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, result.Kind)
	assert.Contains(t, result.Errors[0], "unknown operation")
}

func TestRun_AssertionFailuresAreCollected(t *testing.T) {
	env := newTestEnv(t, testutil.BankAppOptions{})

	sc := mustParse(t, `
name: several_failures
description: "Every failing assertion is reported"
user: testuser
flow:
  - request: GET /users
assertions:
  - type: status
    status: 201
  - type: trace_contains
    request: GET /bankaccounts
  - type: response_schema
    path: results
    each: true
    schema: "#BankAccount"
`)
	result, err := env.runner.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, KindAssertion, result.Kind)
	assert.Len(t, result.Errors, 3)
}

type pollOutcome struct {
	attempts  int
	satisfied bool
}

type pollRecorder struct {
	outcomes []pollOutcome
}

func (p *pollRecorder) RecordPoll(attempts int, satisfied bool) {
	p.outcomes = append(p.outcomes, pollOutcome{attempts, satisfied})
}
