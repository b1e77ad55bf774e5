package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/harness"
	"github.com/sergheinarushev/realworld-app/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update      bool   // regenerate golden files
	Filter      string // scenario filter (glob pattern)
	GoldenDir   string // compare traces with {GoldenDir}/{name}.golden
	DB          string // results history database
	MetricsFile string // Prometheus textfile output
	NoWatch     bool   // poll only, ignore datastore change events
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [scenario-paths...]",
		Short: "Run scenarios against the application",
		Long: `Run scenario files against the running application.

Each scenario logs in as its user, executes its flow, checks responses and
the request trace, then polls the datastore until persisted assertions hold
or the verification budget runs out. Scenarios run one at a time.

Without arguments the configured scenarios directory is used.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (bad config, datastore unreadable, etc.)

Examples:
  rwacheck test
  rwacheck test scenarios/create_comment.yaml
  rwacheck test --filter "*bank*"
  rwacheck test --golden-dir testdata/golden --update
  rwacheck test --db results.db --metrics-file rwacheck.prom`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name (glob pattern)")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "compare request traces with golden files in this directory")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record the run in this SQLite history database")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not watch the datastore for changes while verifying")

	return cmd
}

func (o *TestOptions) overrides() map[string]any {
	extra := map[string]any{}
	if o.DB != "" {
		extra["history_db"] = o.DB
	}
	if o.MetricsFile != "" {
		extra["metrics_file"] = o.MetricsFile
	}
	if o.NoWatch {
		extra["verify.watch"] = false
	}
	return extra
}

func runTests(cmd *cobra.Command, opts *TestOptions, args []string) error {
	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden-dir")
	}

	env, err := opts.setup(cmd, opts.overrides())
	if err != nil {
		return err
	}
	cfg := env.cfg

	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.Scenarios}
	}
	scenarios, err := loadScenarios(opts.Filter, paths...)
	if err != nil {
		_ = env.out.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeScenario+": cannot load scenarios", err)
	}
	if len(scenarios) == 0 {
		if opts.Format == "json" {
			return env.out.Success(&harness.SuiteResult{Results: []*harness.Result{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	users, err := env.loadUsers()
	if err != nil {
		return err
	}
	fixtures, err := env.openStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runnerOpts := []harness.Option{
		harness.WithLogger(env.logger),
		harness.WithVerifyPolicy(harness.VerifyPolicy{
			Attempts: cfg.Verify.Attempts,
			Backoff:  cfg.Verify.Backoff,
		}),
		harness.WithScenarioTimeout(cfg.ScenarioTimeout),
		harness.WithPollRecorder(env.metrics),
	}
	if cfg.Verify.Watch {
		changes, err := fixtures.Watch(ctx)
		if err != nil {
			env.logger.Warn("datastore watch unavailable, polling only", "error", err)
		} else {
			runnerOpts = append(runnerOpts, harness.WithChanges(changes))
		}
	}
	runner := harness.NewRunner(fixtures, users, env.newClient, runnerOpts...)

	onResult := func(sc *harness.Scenario, result *harness.Result) {
		if opts.GoldenDir != "" {
			if err := harness.CheckGolden(opts.GoldenDir, sc.Name, result, opts.Update); err != nil {
				result.AddError(harness.KindAssertion, err)
			}
		}
		env.metrics.RecordScenario(result.Pass, string(result.Kind), result.Duration)
		if opts.Format != "json" {
			printScenarioLine(env.out, result, opts.Update)
		}
	}

	suite, runErr := harness.RunSuite(ctx, runner, scenarios, harness.OnResult(onResult))
	if suite == nil {
		_ = env.out.Error(ErrCodeGeneric, runErr.Error(), nil)
		return WrapExitError(ExitCommandError, "suite did not start", runErr)
	}
	env.metrics.MarkRun(suite.StartedAt)

	if err := recordRun(ctx, env, suite); err != nil {
		return err
	}

	if opts.Format == "json" {
		if err := env.out.Result(suite, suite.RunID); err != nil {
			return err
		}
	} else {
		printSuiteTable(env.out, suite, scenarios)
	}

	switch {
	case runErr != nil && isCanceled(runErr):
		return WrapExitError(ExitCommandError, "suite interrupted", runErr)
	case runErr != nil:
		return WrapExitError(ExitCommandError, fmt.Sprintf("suite stopped after %d of %d scenario(s)", len(suite.Results), suite.Total), runErr)
	case !suite.Pass():
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", suite.Failed, suite.Total))
	}
	return nil
}

// recordRun writes the run to the history database and the metrics textfile
// when they are configured.
func recordRun(ctx context.Context, env *environment, suite *harness.SuiteResult) error {
	if path := env.cfg.HistoryDB; path != "" {
		db, err := store.Open(path)
		if err != nil {
			_ = env.out.Error(ErrCodeHistory, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeHistory+": cannot open history database", err)
		}
		defer db.Close()

		// The suite context may already be cancelled; the record is still wanted.
		if _, err := db.WriteRun(context.WithoutCancel(ctx), store.RunFromSuite(suite, env.cfg.APIURL)); err != nil {
			_ = env.out.Error(ErrCodeHistory, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeHistory+": cannot record run", err)
		}
		env.logger.Debug("run recorded", "run_id", suite.RunID, "db", path)
	}

	if path := env.cfg.MetricsFile; path != "" {
		if err := env.metrics.WriteTextfile(path); err != nil {
			_ = env.out.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed+": cannot write metrics", err)
		}
	}
	return nil
}

func printScenarioLine(out *OutputFormatter, result *harness.Result, updated bool) {
	w := out.Writer
	if result.Pass {
		suffix := ""
		if updated {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "✓ %s%s\n", result.Scenario, suffix)
		return
	}
	fmt.Fprintf(w, "✗ %s [%s]\n", result.Scenario, result.Kind)
	for _, e := range result.Errors {
		for _, line := range strings.Split(e, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if out.Verbose {
		for _, ev := range result.Trace {
			out.VerboseLog("  #%d %s -> %d", ev.Seq, ev.Label(), ev.Status)
		}
	}
}

func printSuiteTable(out *OutputFormatter, suite *harness.SuiteResult, scenarios []*harness.Scenario) {
	t := out.Table("Scenario", "Result", "Kind", "Requests", "Reloads", "Duration")
	alignRight(t, 4, 5, 6)
	for _, r := range suite.Results {
		t.AppendRow([]any{r.Scenario, passLabel(r.Pass), string(r.Kind), len(r.Trace), r.Attempts, r.Duration.Round(time.Millisecond)})
	}
	for _, sc := range scenarios[len(suite.Results):] {
		t.AppendRow([]any{sc.Name, "SKIP", "", "", "", ""})
	}
	t.AppendFooter([]any{
		fmt.Sprintf("%d passed, %d failed, %d skipped", suite.Passed, suite.Failed, suite.Skipped),
		"", "", "", "", suite.Duration.Round(time.Millisecond),
	})
	t.Render()
	fmt.Fprintf(out.Writer, "run %s\n", suite.RunID)
}

// isCanceled reports whether err comes from a cancelled or expired context.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
