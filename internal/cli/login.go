package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	ShowCookie bool
	Logout     bool
}

// LoginResult is the outcome of a login check.
type LoginResult struct {
	Alias    string    `json:"alias"`
	Username string    `json:"username"`
	Cookie   string    `json:"cookie"`
	Value    string    `json:"value,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
	// CheckAuth is the status of GET /checkAuth with the new session.
	CheckAuth int  `json:"check_auth"`
	LoggedOut bool `json:"logged_out,omitempty"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login [alias]",
		Short: "Log in as a fixture user and check the session",
		Long: `Log in as a user from the credentials fixture (default "testuser")
and confirm the session cookie is accepted by GET /checkAuth.

Exit codes:
  0 - Login succeeded
  1 - Login rejected by the application
  2 - Command error (unknown alias, application unreachable, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := "testuser"
			if len(args) == 1 {
				alias = args[0]
			}
			return runLogin(cmd, opts, alias)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowCookie, "show-cookie", false, "print the session cookie value")
	cmd.Flags().BoolVar(&opts.Logout, "logout", false, "log out again after the check")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *LoginOptions, alias string) error {
	env, err := opts.setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := env.authenticatedClient(cmd, alias)
	if err != nil {
		return err
	}
	cred, _ := client.Credential()

	result := LoginResult{
		Alias:    alias,
		Username: cred.Username,
		Cookie:   cred.Cookie,
		IssuedAt: cred.IssuedAt.UTC(),
	}
	if opts.ShowCookie {
		result.Value = cred.Value
	}

	resp, err := client.Request(ctx, http.MethodGet, "/checkAuth", nil)
	if err != nil {
		_ = env.out.Error(ErrCodeRequest, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeRequest+": session check failed", err)
	}
	result.CheckAuth = resp.StatusCode

	if opts.Logout {
		if err := client.Logout(ctx); err != nil {
			_ = env.out.Error(ErrCodeRequest, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeRequest+": logout failed", err)
		}
		result.LoggedOut = true
	}

	if opts.Format == "json" {
		if err := env.out.Success(result); err != nil {
			return err
		}
	} else {
		w := env.out.Writer
		fmt.Fprintf(w, "✓ logged in as %s (%s)\n", result.Alias, result.Username)
		fmt.Fprintf(w, "  cookie:    %s\n", result.Cookie)
		if result.Value != "" {
			fmt.Fprintf(w, "  value:     %s\n", result.Value)
		}
		fmt.Fprintf(w, "  checkAuth: %d\n", result.CheckAuth)
		if result.LoggedOut {
			fmt.Fprintln(w, "  logged out")
		}
	}

	if !resp.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("session rejected by /checkAuth with status %d", resp.StatusCode))
	}
	return nil
}
