package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for semantic errors.
func Validate(cfg Config) error {
	var errs []string

	if u, err := url.Parse(cfg.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api_url %q must be an http(s) URL", cfg.APIURL))
	}
	if cfg.Datastore == "" {
		errs = append(errs, "datastore is required")
	}
	if cfg.Users == "" {
		errs = append(errs, "users is required")
	}
	if cfg.Verify.Attempts < 1 {
		errs = append(errs, "verify.attempts must be >= 1")
	}
	if cfg.Verify.Backoff < 0 {
		errs = append(errs, "verify.backoff cannot be negative")
	}
	if cfg.Request.RetryDelay < 0 {
		errs = append(errs, "request.retry_delay cannot be negative")
	}
	if cfg.Request.Timeout <= 0 {
		errs = append(errs, "request.timeout must be > 0")
	}
	if cfg.ScenarioTimeout <= 0 {
		errs = append(errs, "scenario_timeout must be > 0")
	}
	if cfg.CookieName == "" {
		errs = append(errs, "cookie_name is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
