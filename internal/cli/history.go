package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/store"
)

// HistoryOptions holds flags shared by the history subcommands.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded test runs",
		Long: `Query the SQLite history written by "rwacheck test --db".

Run ids may be given as "latest" for the most recent run.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "history database (default: history_db from config)")

	cmd.AddCommand(newHistoryListCommand(opts))
	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryDiffCommand(opts))
	cmd.AddCommand(newHistoryScenarioCommand(opts))
	cmd.AddCommand(newHistoryPruneCommand(opts))

	return cmd
}

// openHistory resolves the database path and opens it.
func (o *HistoryOptions) openHistory(cmd *cobra.Command) (*environment, *store.Store, error) {
	extra := map[string]any{}
	if o.Database != "" {
		extra["history_db"] = o.Database
	}
	env, err := o.setup(cmd, extra)
	if err != nil {
		return nil, nil, err
	}
	path := env.cfg.HistoryDB
	if path == "" {
		_ = env.out.Error(ErrCodeHistory, "no history database configured", nil)
		return nil, nil, NewExitError(ExitCommandError, ErrCodeHistory+": no history database configured (use --db)")
	}
	db, err := store.Open(path)
	if err != nil {
		_ = env.out.Error(ErrCodeHistory, err.Error(), nil)
		return nil, nil, WrapExitError(ExitCommandError, ErrCodeHistory+": cannot open history database", err)
	}
	return env, db, nil
}

// resolveRunID expands "latest".
func resolveRunID(cmd *cobra.Command, db *store.Store, id string) (string, error) {
	if id != "latest" {
		return id, nil
	}
	latest, err := db.LatestRunID(cmd.Context())
	if errors.Is(err, sql.ErrNoRows) {
		return "", NewExitError(ExitCommandError, ErrCodeHistory+": no runs recorded")
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, ErrCodeHistory+": cannot read runs", err)
	}
	return latest, nil
}

func historyReadError(env *environment, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		_ = env.out.Error(ErrCodeNotFound, what+" not found", nil)
		return NewExitError(ExitCommandError, ErrCodeNotFound+": "+what+" not found")
	}
	_ = env.out.Error(ErrCodeHistory, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeHistory+": cannot read "+what, err)
}

// RunSummary is the listing form of a stored run.
type RunSummary struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	APIURL    string        `json:"api_url"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

func summarize(run store.Run) RunSummary {
	return RunSummary{
		ID:        run.ID,
		StartedAt: run.StartedAt,
		Duration:  run.Duration,
		APIURL:    run.APIURL,
		Total:     run.Total,
		Passed:    run.Passed,
		Failed:    run.Failed,
		Skipped:   run.Skipped,
	}
}

func newHistoryListCommand(opts *HistoryOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, db, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ReadRuns(cmd.Context(), limit)
			if err != nil {
				return historyReadError(env, "runs", err)
			}
			summaries := make([]RunSummary, 0, len(runs))
			for _, r := range runs {
				summaries = append(summaries, summarize(r))
			}

			if opts.Format == "json" {
				return env.out.Success(summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(env.out.Writer, "No runs recorded.")
				return nil
			}
			t := env.out.Table("Run", "Started", "Passed", "Failed", "Skipped", "Duration", "API")
			alignRight(t, 3, 4, 5, 6)
			for _, s := range summaries {
				t.AppendRow([]any{s.ID, s.StartedAt.Format(time.DateTime), s.Passed, s.Failed, s.Skipped, s.Duration.Round(time.Millisecond), s.APIURL})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 for all)")

	return cmd
}

func newHistoryShowCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id|latest>",
		Short:         "Show the scenario results of one run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, db, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := resolveRunID(cmd, db, args[0])
			if err != nil {
				return err
			}
			run, err := db.ReadRun(cmd.Context(), id)
			if err != nil {
				return historyReadError(env, "run "+id, err)
			}

			if opts.Format == "json" {
				return env.out.Result(run, run.ID)
			}
			w := env.out.Writer
			fmt.Fprintf(w, "run %s at %s against %s\n", run.ID, run.StartedAt.Format(time.DateTime), run.APIURL)
			t := env.out.Table("#", "Scenario", "Result", "Kind", "Requests", "Reloads", "Duration")
			alignRight(t, 1, 5, 6, 7)
			for _, sc := range run.Scenarios {
				t.AppendRow([]any{sc.Seq, sc.Scenario, passLabel(sc.Pass), string(sc.Kind), len(sc.Trace), sc.Attempts, sc.Duration.Round(time.Millisecond)})
			}
			t.AppendFooter([]any{"", fmt.Sprintf("%d passed, %d failed, %d skipped", run.Passed, run.Failed, run.Skipped), "", "", "", "", run.Duration.Round(time.Millisecond)})
			t.Render()
			for _, sc := range run.Scenarios {
				if sc.Pass {
					continue
				}
				fmt.Fprintf(w, "✗ %s\n", sc.Scenario)
				for _, e := range sc.Errors {
					fmt.Fprintf(w, "  %s\n", e)
				}
			}
			return nil
		},
	}
}

// ChangeRow is the output form of a store.Change.
type ChangeRow struct {
	Scenario string             `json:"scenario"`
	Status   store.ChangeStatus `json:"status"`
	Previous string             `json:"previous,omitempty"` // run id
	Pass     bool               `json:"pass"`
}

func newHistoryDiffCommand(opts *HistoryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [run-id|latest]",
		Short: "Compare a run with each scenario's previous result",
		Long: `Compare every scenario of a run (default: latest) with the most recent
earlier result of the same scenario.

Exit codes:
  0 - No scenario regressed
  1 - At least one scenario regressed
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, db, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ref := "latest"
			if len(args) == 1 {
				ref = args[0]
			}
			id, err := resolveRunID(cmd, db, ref)
			if err != nil {
				return err
			}
			changes, err := db.CompareRun(cmd.Context(), id)
			if err != nil {
				return historyReadError(env, "run "+id, err)
			}

			rows := make([]ChangeRow, 0, len(changes))
			regressed := 0
			for _, c := range changes {
				row := ChangeRow{Scenario: c.Scenario, Status: c.Status, Pass: c.Current.Pass}
				if c.Previous != nil {
					row.Previous = c.Previous.RunID
				}
				if c.Status == store.StatusRegressed {
					regressed++
				}
				rows = append(rows, row)
			}

			if opts.Format == "json" {
				if err := env.out.Result(rows, id); err != nil {
					return err
				}
			} else {
				t := env.out.Table("Scenario", "Change", "Result", "Previous run")
				for _, r := range rows {
					t.AppendRow([]any{r.Scenario, string(r.Status), passLabel(r.Pass), r.Previous})
				}
				t.Render()
			}

			if regressed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) regressed in run %s", regressed, id))
			}
			return nil
		},
	}
}

func newHistoryScenarioCommand(opts *HistoryOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "scenario <name>",
		Short:         "Show one scenario's results across runs",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, db, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.ReadScenarioHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return historyReadError(env, "scenario "+args[0], err)
			}

			if opts.Format == "json" {
				return env.out.Success(records)
			}
			if len(records) == 0 {
				fmt.Fprintf(env.out.Writer, "No results for %s.\n", args[0])
				return nil
			}
			t := env.out.Table("Run", "Result", "Kind", "Reloads", "Duration", "First error")
			alignRight(t, 4, 5)
			for _, r := range records {
				first := ""
				if len(r.Errors) > 0 {
					first = r.Errors[0]
				}
				t.AppendRow([]any{r.RunID, passLabel(r.Pass), string(r.Kind), r.Attempts, r.Duration.Round(time.Millisecond), first})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results (0 for all)")

	return cmd
}

func newHistoryPruneCommand(opts *HistoryOptions) *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:           "prune --before <run-id|latest>",
		Short:         "Delete runs older than the given run",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if before == "" {
				return NewExitError(ExitCommandError, "--before is required")
			}
			env, db, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := resolveRunID(cmd, db, before)
			if err != nil {
				return err
			}
			if _, err := db.ReadRun(cmd.Context(), id); err != nil {
				return historyReadError(env, "run "+id, err)
			}
			deleted, err := db.DeleteRunsBefore(cmd.Context(), id)
			if err != nil {
				_ = env.out.Error(ErrCodeHistory, err.Error(), nil)
				return WrapExitError(ExitCommandError, ErrCodeHistory+": prune failed", err)
			}

			if opts.Format == "json" {
				return env.out.Success(map[string]any{"deleted": deleted, "kept_from": id})
			}
			fmt.Fprintf(env.out.Writer, "Deleted %d run(s) before %s\n", deleted, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "keep this run and everything newer")

	return cmd
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
