package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/sergheinarushev/realworld-app/internal/testutil"
)

// testConfig keeps retries and polling short.
const testConfig = `verify:
  attempts: 3
  backoff: 20ms
request:
  retry_delay: 1ms
  timeout: 5s
scenario_timeout: 10s
`

// cliFixture is a fake application with its datastore, users fixture and
// config file in one temp dir.
type cliFixture struct {
	dir       string
	datastore string
	users     string
	app       *testutil.BankApp
}

func newCLIFixture(t *testing.T, appOpts testutil.BankAppOptions) *cliFixture {
	t.Helper()

	datastore := testutil.SeedDatastore(t)
	dir := filepath.Dir(datastore)
	f := &cliFixture{
		dir:       dir,
		datastore: datastore,
		users:     testutil.SeedUsers(t, dir),
		app:       testutil.NewBankApp(t, datastore, appOpts),
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rwacheck.yaml"), []byte(testConfig), 0o644))
	return f
}

// rootOpts points every layer of configuration at the fixture.
func (f *cliFixture) rootOpts(format string) *RootOptions {
	return &RootOptions{
		Format:     format,
		ConfigPath: filepath.Join(f.dir, "rwacheck.yaml"),
		APIURL:     f.app.URL(),
		Datastore:  f.datastore,
		Users:      f.users,
	}
}

// writeScenario writes a scenario file into a scenarios dir under f.dir.
func (f *cliFixture) writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	dir := filepath.Join(f.dir, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *cliFixture) scenariosDir() string {
	return filepath.Join(f.dir, "scenarios")
}

// execute runs cmd with args and returns stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

const listBankAccountsScenario = `name: list_bank_accounts
description: GET /bankaccounts returns the user's accounts
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
    schema: "#BankAccount"
    each: true
`

const createCommentScenario = `name: create_comment
description: a posted comment lands in the datastore
user: testuser
vars:
  content: xyz random words
flow:
  - name: post
    request: POST /comments/183VHWyuQMS
    body:
      transactionId: 183VHWyuQMS
      content: "{{ .Vars.content }}"
    expect:
      status: 200
assertions:
  - type: persisted
    collection: comments
    where:
      transactionId: 183VHWyuQMS
      content: "{{ .Vars.content }}"
    expect:
      userId: t45AiwidW
`

const wrongProfileScenario = `name: wrong_profile
description: profile lastName is compared with a wrong value
user: testuser
flow:
  - name: profile
    request: GET /users/profile/Tavares_Barrows
    expect:
      status: 200
assertions:
  - type: response_equals
    step: profile
    path: user.lastName
    equals: Smith
`
