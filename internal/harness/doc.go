// Package harness runs YAML scenarios against the banking application.
//
// A scenario authenticates as one user, issues a flow of REST, GraphQL,
// login and logout steps through a session.Client, then evaluates
// assertions over the responses, the request trace and the JSON datastore
// the application writes.
//
// # Scenario Format
//
//	name: create_comment
//	description: "Comment on a transaction and observe it in the datastore"
//	user: testuser
//	vars:
//	  content: "xyz random words"
//	flow:
//	  - name: comment
//	    request: POST /comments/183VHWyuQMS
//	    body:
//	      transactionId: 183VHWyuQMS
//	      content: "{{ .Vars.content }}"
//	    expect:
//	      status: 200
//	assertions:
//	  - type: persisted
//	    collection: comments
//	    where: { transactionId: 183VHWyuQMS }
//	    expect: { content: "{{ .Vars.content }}" }
//
// Every string is a text/template evaluated against Vars, Captured (values
// taken from earlier responses with capture), Fixture (the datastore
// snapshot loaded when the scenario started) and User (the acting user's
// datastore record). Template functions: uuid, usd, digits, user and
// transaction.
//
// # Assertion Types
//
//   - status: the step's response has the given status code
//   - response_schema: the value at path satisfies a CUE definition;
//     with each, every element of the list at path does
//   - response_equals: the value at path equals the expected value
//   - persisted: the most recently appended record of a collection matching
//     where has the expect fields; polled with datastore reloads
//   - trace_contains, trace_order, trace_count: over the request trace
//
// # Execution
//
// A Runner moves through Idle, Authenticating, Ready, Executing and
// Verifying for every scenario and returns to Idle. Scenarios never run
// concurrently: the datastore is one shared file with no isolation.
// Persisted assertions are retried with a fixed backoff for a bounded number
// of attempts, after which the scenario fails with a *VerificationTimeout
// that carries the last snapshot read.
package harness
