package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/session"
)

// RequestOptions holds flags for the request command.
type RequestOptions struct {
	*RootOptions
	User      string
	Body      string
	Anonymous bool
	GraphQL   string // operation name
	Query     string
	Vars      string
}

// RequestResult is one exchange with the application.
type RequestResult struct {
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Status   int             `json:"status"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`
	Body     json.RawMessage `json:"body,omitempty"`
	Text     string          `json:"text,omitempty"` // non-JSON body
}

// NewRequestCommand creates the request command.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "request <METHOD> <path> | --graphql <operation>",
		Short: "Send one request to the application as a fixture user",
		Long: `Send one REST or GraphQL request to the application with the session of
a fixture user and print the response.

Exit codes:
  0 - 2xx response
  1 - Non-2xx response or GraphQL errors
  2 - Command error (login failed, application unreachable, etc.)

Examples:
  rwacheck request GET /bankaccounts
  rwacheck request --user testuser POST /comments/183VHWyuQMS --body '{"content":"hi"}'
  rwacheck request --graphql CreateBankAccount --vars '{"bankName":"Test Bank","accountNumber":"123456789","routingNumber":"987654321"}'
  rwacheck request --anonymous GET /checkAuth`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.GraphQL != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendRequest(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "testuser", "users fixture alias to log in as")
	cmd.Flags().StringVar(&opts.Body, "body", "", "request body as JSON")
	cmd.Flags().BoolVar(&opts.Anonymous, "anonymous", false, "send without logging in")
	cmd.Flags().StringVar(&opts.GraphQL, "graphql", "", "GraphQL operation name")
	cmd.Flags().StringVar(&opts.Query, "query", "", "GraphQL document (default: the application's own for known operations)")
	cmd.Flags().StringVar(&opts.Vars, "vars", "", "GraphQL variables as JSON")

	return cmd
}

// graphQLDocuments are the operations whose documents the CLI knows.
var graphQLDocuments = map[string]string{
	"CreateBankAccount": session.CreateBankAccountMutation,
}

func sendRequest(cmd *cobra.Command, opts *RequestOptions, args []string) error {
	env, err := opts.setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var body any
	if opts.Body != "" {
		if !json.Valid([]byte(opts.Body)) {
			return NewExitError(ExitCommandError, "invalid --body JSON")
		}
		body = json.RawMessage(opts.Body)
	}
	var vars map[string]any
	if opts.Vars != "" {
		if err := json.Unmarshal([]byte(opts.Vars), &vars); err != nil {
			return WrapExitError(ExitCommandError, "invalid --vars JSON", err)
		}
	}
	query := opts.Query
	if opts.GraphQL != "" && query == "" {
		query = graphQLDocuments[opts.GraphQL]
		if query == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("no known document for operation %q; pass --query", opts.GraphQL))
		}
	}

	var client *session.Client
	if opts.Anonymous {
		client, err = env.newClient()
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeConfig+": invalid api url", err)
		}
	} else {
		client, err = env.authenticatedClient(cmd, opts.User)
		if err != nil {
			return err
		}
	}

	var resp *session.Response
	switch {
	case opts.GraphQL != "":
		resp, err = client.GraphQL(ctx, opts.GraphQL, query, vars)
	default:
		resp, err = client.Send(ctx, session.Call{
			Method:    strings.ToUpper(args[0]),
			Path:      args[1],
			Body:      body,
			Anonymous: opts.Anonymous,
		})
	}
	if resp == nil {
		_ = env.out.Error(ErrCodeRequest, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeRequest+": request failed", err)
	}

	result := RequestResult{
		Method:   resp.Method,
		Path:     resp.Path,
		Status:   resp.StatusCode,
		Attempts: resp.Attempts,
		Duration: resp.Duration,
	}
	if json.Valid(resp.Body) {
		result.Body = json.RawMessage(resp.Body)
	} else {
		result.Text = string(resp.Body)
	}

	if opts.Format == "json" {
		if err := env.out.Success(result); err != nil {
			return err
		}
	} else {
		printResponse(env.out, result)
	}

	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		var reqErr *session.RequestError
		if errors.As(err, &reqErr) {
			return WrapExitError(ExitFailure, ErrCodeRequest+": unsuccessful response", err)
		}
		return WrapExitError(ExitCommandError, ErrCodeRequest+": request failed", err)
	}
	return nil
}

func printResponse(out *OutputFormatter, r RequestResult) {
	w := out.Writer
	fmt.Fprintf(w, "%s %s -> %d (%s, %d attempt(s))\n", r.Method, r.Path, r.Status, r.Duration.Round(time.Millisecond), r.Attempts)
	if len(r.Body) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, r.Body, "", "  "); err == nil {
			fmt.Fprintln(w, buf.String())
			return
		}
	}
	if r.Text != "" {
		fmt.Fprintln(w, r.Text)
	}
}
