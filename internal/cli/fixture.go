package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/money"
)

// NewFixtureCommand creates the fixture command group. Its subcommands read
// the datastore only; the application is never contacted.
func NewFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Inspect the application's datastore",
	}

	cmd.AddCommand(newFixtureCountsCommand(rootOpts))
	cmd.AddCommand(newFixtureUsersCommand(rootOpts))
	cmd.AddCommand(newFixtureRecordsCommand(rootOpts))
	cmd.AddCommand(newFixtureTransactionCommand(rootOpts))

	return cmd
}

func newFixtureCountsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "counts",
		Short:         "Show the number of records per collection",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, snap, err := loadSnapshot(cmd, rootOpts)
			if err != nil {
				return err
			}
			counts := snap.Counts()
			if rootOpts.Format == "json" {
				return env.out.Success(counts)
			}
			t := env.out.Table("Collection", "Records")
			alignRight(t, 2)
			for _, name := range fixture.Collections {
				t.AppendRow([]any{name, counts[name]})
			}
			t.Render()
			return nil
		},
	}
}

// UserRow is a users listing entry. Passwords are never shown.
type UserRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Balance  int64  `json:"balance"`
	Display  string `json:"balance_display"`
}

func newFixtureUsersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "users",
		Short:         "List users with their balances",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, snap, err := loadSnapshot(cmd, rootOpts)
			if err != nil {
				return err
			}
			rows := make([]UserRow, 0, len(snap.Users))
			for _, u := range snap.Users {
				rows = append(rows, UserRow{
					ID:       u.ID,
					Username: u.Username,
					Name:     u.FullName(),
					Phone:    u.PhoneNumber,
					Balance:  u.Balance,
					Display:  money.FormatUSD(u.Balance),
				})
			}
			if rootOpts.Format == "json" {
				return env.out.Success(rows)
			}
			t := env.out.Table("ID", "Username", "Name", "Phone", "Balance")
			alignRight(t, 5)
			for _, r := range rows {
				t.AppendRow([]any{r.ID, r.Username, r.Name, r.Phone, r.Display})
			}
			t.Render()
			return nil
		},
	}
}

func newFixtureRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:   "records <collection>",
		Short: "Print raw records of a collection",
		Long: `Print the raw records of one collection, newest first.

--where filters on top-level fields; values are compared as text:
  rwacheck fixture records comments --where transactionId=183VHWyuQMS`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			if !slices.Contains(fixture.Collections, collection) {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown collection %q: must be one of %v", collection, fixture.Collections))
			}
			filter, err := parseWhere(where)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --where", err)
			}

			env, snap, err := loadSnapshot(cmd, rootOpts)
			if err != nil {
				return err
			}

			records := snap.Records(collection)
			matched := make([]fixture.Record, 0, len(records))
			for i := len(records) - 1; i >= 0; i-- {
				if recordMatches(records[i], filter) {
					matched = append(matched, records[i])
				}
			}

			if rootOpts.Format == "json" {
				return env.out.Success(matched)
			}
			enc := json.NewEncoder(env.out.Writer)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(matched); err != nil {
				return err
			}
			fmt.Fprintf(env.out.Writer, "%d of %d %s record(s)\n", len(matched), len(records), collection)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&where, "where", nil, "field=value filter (repeatable)")

	return cmd
}

func parseWhere(clauses []string) (map[string]string, error) {
	filter := make(map[string]string, len(clauses))
	for _, c := range clauses {
		field, value, ok := strings.Cut(c, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", c)
		}
		filter[field] = value
	}
	return filter, nil
}

func recordMatches(rec fixture.Record, filter map[string]string) bool {
	for field, want := range filter {
		got, ok := rec[field]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// TransactionView is a transaction as the detail page renders it.
type TransactionView struct {
	ID          string   `json:"id"`
	Sender      string   `json:"sender"`
	Receiver    string   `json:"receiver"`
	Amount      string   `json:"amount"`
	Description string   `json:"description"`
	Status      string   `json:"status,omitempty"`
	Comments    []string `json:"comments"`
}

func newFixtureTransactionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "transaction <id>",
		Short:         "Show a transaction with party names and comments",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, snap, err := loadSnapshot(cmd, rootOpts)
			if err != nil {
				return err
			}
			view, err := transactionView(snap, args[0])
			if err != nil {
				_ = env.out.Error(ErrCodeNotFound, err.Error(), nil)
				return WrapExitError(ExitFailure, ErrCodeNotFound+": transaction lookup failed", err)
			}
			if rootOpts.Format == "json" {
				return env.out.Success(view)
			}
			w := env.out.Writer
			fmt.Fprintf(w, "%s paid %s %s\n", view.Sender, view.Receiver, view.Amount)
			fmt.Fprintf(w, "  %s\n", view.Description)
			if view.Status != "" {
				fmt.Fprintf(w, "  status: %s\n", view.Status)
			}
			for _, c := range view.Comments {
				fmt.Fprintf(w, "  > %s\n", c)
			}
			return nil
		},
	}
}

func transactionView(snap *fixture.Snapshot, id string) (TransactionView, error) {
	tx, err := snap.TransactionByID(id)
	if err != nil {
		return TransactionView{}, fmt.Errorf("transaction %s: %w", id, err)
	}
	sender, err := snap.UserByID(tx.SenderID)
	if err != nil {
		return TransactionView{}, fmt.Errorf("sender %s: %w", tx.SenderID, err)
	}
	receiver, err := snap.UserByID(tx.ReceiverID)
	if err != nil {
		return TransactionView{}, fmt.Errorf("receiver %s: %w", tx.ReceiverID, err)
	}

	view := TransactionView{
		ID:          tx.ID,
		Sender:      sender.FullName(),
		Receiver:    receiver.FullName(),
		Amount:      money.FormatUSD(tx.Amount),
		Description: tx.Description,
		Status:      tx.Status,
		Comments:    []string{},
	}
	for _, c := range snap.Comments {
		if c.TransactionID == tx.ID {
			view.Comments = append(view.Comments, c.Content)
		}
	}
	return view, nil
}

func loadSnapshot(cmd *cobra.Command, rootOpts *RootOptions) (*environment, *fixture.Snapshot, error) {
	env, err := rootOpts.setup(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	store, err := env.openStore()
	if err != nil {
		return nil, nil, err
	}
	return env, store.Snapshot(), nil
}
