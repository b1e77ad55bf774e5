// Package config implements layered configuration for rwacheck.
// Precedence: defaults < rwacheck.yaml < .env file < env (RWA_*) < flags.
package config

import "time"

// Config is the effective configuration of one invocation.
type Config struct {
	APIURL          string        `mapstructure:"api_url"`
	Datastore       string        `mapstructure:"datastore"`
	Users           string        `mapstructure:"users"`
	Scenarios       string        `mapstructure:"scenarios"`
	Verify          VerifyConfig  `mapstructure:"verify"`
	Request         RequestConfig `mapstructure:"request"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout"`
	CookieName      string        `mapstructure:"cookie_name"`
	HistoryDB       string        `mapstructure:"history_db"`
	MetricsFile     string        `mapstructure:"metrics_file"`
}

// VerifyConfig bounds the persisted-state polling loop.
type VerifyConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
	// Watch wakes the poller early when the datastore file changes.
	Watch bool `mapstructure:"watch"`
}

// RequestConfig tunes the HTTP client.
type RequestConfig struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the built-in defaults. They match a local checkout of
// the banking application started with its default scripts.
func DefaultConfig() Config {
	return Config{
		APIURL:    "http://localhost:3001",
		Datastore: "data/database.json",
		Users:     "fixtures/users.json",
		Scenarios: "scenarios",
		Verify: VerifyConfig{
			Attempts: 10,
			Backoff:  250 * time.Millisecond,
			Watch:    true,
		},
		Request: RequestConfig{
			RetryDelay: 500 * time.Millisecond,
			Timeout:    30 * time.Second,
		},
		ScenarioTimeout: 30 * time.Second,
		CookieName:      "connect.sid",
	}
}
