package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/config"
	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/harness"
	"github.com/sergheinarushev/realworld-app/internal/metrics"
	"github.com/sergheinarushev/realworld-app/internal/session"
)

// environment bundles what commands need to reach the application and its
// datastore. Collaborators are created on first use so that commands which
// never touch the users fixture do not require one.
type environment struct {
	cfg     config.Config
	logger  *slog.Logger
	out     *OutputFormatter
	metrics *metrics.Metrics

	users map[string]fixture.Credentials
	store *fixture.Store
}

// setup loads configuration and prepares the output formatter for cmd.
func (o *RootOptions) setup(cmd *cobra.Command, extra map[string]any) (*environment, error) {
	out := &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}

	cfg, err := o.loadConfig(extra)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, err
	}

	env := &environment{
		cfg:     cfg,
		logger:  o.newLogger(cmd.ErrOrStderr()),
		out:     out,
		metrics: metrics.New(),
	}
	env.logger.Debug("configuration loaded",
		"api_url", cfg.APIURL,
		"datastore", cfg.Datastore,
		"users", cfg.Users,
	)
	return env, nil
}

// loadUsers reads the credentials fixture once.
func (e *environment) loadUsers() (map[string]fixture.Credentials, error) {
	if e.users != nil {
		return e.users, nil
	}
	users, err := fixture.LoadUsers(e.cfg.Users)
	if err != nil {
		_ = e.out.Error(ErrCodeUsers, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeUsers+": cannot load users fixture", err)
	}
	e.users = users
	return users, nil
}

// openStore loads the datastore once.
func (e *environment) openStore() (*fixture.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := fixture.Open(e.cfg.Datastore, fixture.WithLogger(e.logger))
	if err != nil {
		_ = e.out.Error(ErrCodeDatastore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeDatastore+": cannot load datastore", err)
	}
	e.store = store
	return store, nil
}

// newClient returns an unauthenticated client configured from e.cfg.
// It satisfies harness.ClientFactory.
func (e *environment) newClient() (*session.Client, error) {
	return session.New(e.cfg.APIURL,
		session.WithHTTPClient(&http.Client{Timeout: e.cfg.Request.Timeout}),
		session.WithCookieName(e.cfg.CookieName),
		session.WithRetryDelay(e.cfg.Request.RetryDelay),
		session.WithLogger(e.logger),
		session.WithRecorder(e.metrics),
	)
}

// credentials resolves a users-fixture alias.
func (e *environment) credentials(alias string) (fixture.Credentials, error) {
	users, err := e.loadUsers()
	if err != nil {
		return fixture.Credentials{}, err
	}
	creds, ok := users[alias]
	if !ok {
		msg := fmt.Sprintf("no user %q in %s", alias, e.cfg.Users)
		_ = e.out.Error(ErrCodeUsers, msg, nil)
		return fixture.Credentials{}, NewExitError(ExitCommandError, ErrCodeUsers+": "+msg)
	}
	return creds, nil
}

// authenticatedClient logs in as alias and returns the client holding the session.
func (e *environment) authenticatedClient(cmd *cobra.Command, alias string) (*session.Client, error) {
	creds, err := e.credentials(alias)
	if err != nil {
		return nil, err
	}
	client, err := e.newClient()
	if err != nil {
		_ = e.out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": invalid api url", err)
	}
	if _, err := client.Authenticate(cmd.Context(), creds.Username, creds.Password); err != nil {
		_ = e.out.Error(ErrCodeAuth, err.Error(), map[string]string{"user": alias})
		// A status of zero means the application never answered.
		var authErr *session.AuthError
		if errors.As(err, &authErr) && authErr.Status != 0 {
			return nil, WrapExitError(ExitFailure, ErrCodeAuth+": login failed", err)
		}
		return nil, WrapExitError(ExitCommandError, ErrCodeRequest+": login request failed", err)
	}
	return client, nil
}

// loadScenarios loads scenario files from paths and keeps those whose name
// matches filter (a filepath.Match glob; empty keeps all).
func loadScenarios(filter string, paths ...string) ([]*harness.Scenario, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	scenarios, err := harness.LoadScenarios(paths...)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return scenarios, nil
	}

	kept := scenarios[:0]
	for _, sc := range scenarios {
		if matched, _ := filepath.Match(filter, sc.Name); matched {
			kept = append(kept, sc)
		}
	}
	return kept, nil
}
