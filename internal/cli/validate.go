package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/harness"
)

// ValidationError is one problem found by validate.
type ValidationError struct {
	Target  string `json:"target"` // file or alias the problem belongs to
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios int               `json:"scenarios"`
	Users     int               `json:"users"`
	Counts    map[string]int    `json:"counts,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [scenario-paths...]",
		Short: "Validate scenarios and fixtures without contacting the application",
		Long: `Validate scenario files, the credentials fixture and the datastore.

Scenario files are decoded strictly and checked for required fields. Every
scenario user must exist in the credentials fixture, and every fixture user
must exist in the datastore. All problems are reported, not just the first.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	env, err := opts.setup(cmd, nil)
	if err != nil {
		return err
	}
	formatter := env.out

	paths := args
	if len(paths) == 0 {
		paths = []string{env.cfg.Scenarios}
	}

	result := ValidationResult{}
	files, err := findScenarioFiles(paths)
	if err != nil {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
	}
	formatter.VerboseLog("Found %d scenario file(s)", len(files))

	// Scenarios
	var scenarios []*harness.Scenario
	names := make(map[string]string, len(files))
	for _, f := range files {
		sc, err := harness.LoadScenario(f)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{Target: f, Code: ErrCodeScenario, Message: err.Error()})
			continue
		}
		if prev, ok := names[sc.Name]; ok {
			result.Errors = append(result.Errors, ValidationError{
				Target:  f,
				Code:    ErrCodeScenario,
				Message: fmt.Sprintf("scenario name %q already used by %s", sc.Name, prev),
			})
			continue
		}
		names[sc.Name] = f
		scenarios = append(scenarios, sc)
	}
	result.Scenarios = len(scenarios)

	// Credentials fixture
	users, err := fixture.LoadUsers(env.cfg.Users)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{Target: env.cfg.Users, Code: ErrCodeUsers, Message: err.Error()})
	} else {
		result.Users = len(users)
		for _, sc := range scenarios {
			if sc.User == "" {
				continue
			}
			if _, ok := users[sc.User]; !ok {
				result.Errors = append(result.Errors, ValidationError{
					Target:  sc.Path,
					Code:    ErrCodeUsers,
					Message: fmt.Sprintf("user %q not in %s", sc.User, env.cfg.Users),
				})
			}
		}
	}

	// Datastore
	snap, err := fixture.Load(env.cfg.Datastore)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{Target: env.cfg.Datastore, Code: ErrCodeDatastore, Message: err.Error()})
	} else {
		result.Counts = snap.Counts()
		for _, alias := range sortedAliases(users) {
			username := users[alias].Username
			if _, err := snap.UserByUsername(username); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Target:  alias,
					Code:    ErrCodeUsers,
					Message: fmt.Sprintf("username %q not found in datastore", username),
				})
			}
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

// findScenarioFiles expands paths into YAML files. Directories are walked
// recursively. A missing path is an error.
func findScenarioFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			// Only process .yaml and .yml files
			if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error scanning directory: %w", err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func sortedAliases(users map[string]fixture.Credentials) []string {
	aliases := make([]string, 0, len(users))
	for alias := range users {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d scenario(s), %d user(s), datastore valid\n", result.Scenarios, result.Users)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Missing inputs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n", err.Target)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
