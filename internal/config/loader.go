package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: verify.attempts is read
// from RWA_VERIFY_ATTEMPTS.
const EnvPrefix = "RWA"

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "rwacheck.yaml"

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath overrides DefaultConfigFile. An explicit path must exist.
	ConfigPath string
	// EnvFile overrides DefaultEnvFile. An explicit path must exist.
	EnvFile string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// Keys lists every configuration key.
var Keys = []string{
	"api_url",
	"datastore",
	"users",
	"scenarios",
	"verify.attempts",
	"verify.backoff",
	"verify.watch",
	"request.retry_delay",
	"request.timeout",
	"scenario_timeout",
	"cookie_name",
	"history_db",
	"metrics_file",
}

// Load returns the effective configuration after applying precedence.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := mergeConfigFile(v, opts.ConfigPath); err != nil {
		return Config{}, err
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(v, dotenv)

	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("api_url", def.APIURL)
	v.SetDefault("datastore", def.Datastore)
	v.SetDefault("users", def.Users)
	v.SetDefault("scenarios", def.Scenarios)
	v.SetDefault("verify.attempts", def.Verify.Attempts)
	v.SetDefault("verify.backoff", def.Verify.Backoff)
	v.SetDefault("verify.watch", def.Verify.Watch)
	v.SetDefault("request.retry_delay", def.Request.RetryDelay)
	v.SetDefault("request.timeout", def.Request.Timeout)
	v.SetDefault("scenario_timeout", def.ScenarioTimeout)
	v.SetDefault("cookie_name", def.CookieName)
	v.SetDefault("history_db", def.HistoryDB)
	v.SetDefault("metrics_file", def.MetricsFile)
}

func mergeConfigFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnvOverrides applies RWA_* values. The process environment wins over
// the env file.
func applyEnvOverrides(v *viper.Viper, dotenv map[string]string) {
	for _, key := range Keys {
		name := EnvName(key)
		if val, ok := os.LookupEnv(name); ok && val != "" {
			v.Set(key, val)
			continue
		}
		if val, ok := dotenv[name]; ok && val != "" {
			v.Set(key, val)
		}
	}
}
