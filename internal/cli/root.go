package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sergheinarushev/realworld-app/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	EnvFile    string

	// Overrides for the most common configuration keys. Empty means unset.
	APIURL    string
	Datastore string
	Users     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rwacheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rwacheck",
		Short: "rwacheck - scenario harness for the banking demo app",
		Long: `Drive the banking demo application over HTTP and GraphQL, then verify
what it wrote to its JSON datastore.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// --golden_dir and --golden-dir name the same flag, like config keys.
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultConfigFile+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "env file (default ./"+config.DefaultEnvFile+")")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "base URL of the application")
	cmd.PersistentFlags().StringVar(&opts.Datastore, "datastore", "", "path to the application's JSON datastore")
	cmd.PersistentFlags().StringVar(&opts.Users, "users", "", "path to the credentials fixture")

	// Add subcommands
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewRequestCommand(opts))
	cmd.AddCommand(NewFixtureCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig resolves the effective configuration. Root flags win over every
// other layer; extra holds command-specific overrides.
func (o *RootOptions) loadConfig(extra map[string]any) (config.Config, error) {
	overrides := map[string]any{}
	if o.APIURL != "" {
		overrides["api_url"] = o.APIURL
	}
	if o.Datastore != "" {
		overrides["datastore"] = o.Datastore
	}
	if o.Users != "" {
		overrides["users"] = o.Users
	}
	for k, v := range extra {
		overrides[k] = v
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath:    o.ConfigPath,
		EnvFile:       o.EnvFile,
		FlagOverrides: overrides,
	})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, ErrCodeConfig+": invalid configuration", err)
	}
	return cfg, nil
}

// newLogger returns a slog logger backed by a charmbracelet handler on w.
// Debug records are shown only in verbose mode.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := log.WarnLevel
	if o.Verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "rwacheck",
		ReportTimestamp: o.Verbose,
	})
	return slog.New(handler)
}
