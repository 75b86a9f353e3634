// Package config handles hoist configuration parsing and location resolution.
//
// SYNC REQUIREMENT: Validation rules in this file must stay in sync with
// the typed constants in internal/types.
//
// Validated rules:
//   - environment: production, staging, development (validateEnvironment)
//   - durations: Go duration syntax or "0" (validateDuration)
//   - web.manifest_url: http(s) URL, required in production (validateWeb)
//   - web.events_url: ws(s) URL when set (validateWeb)
//   - web.quota: humanized byte size (validateWeb)
//   - native.owner/native.repo: required when native updates are enabled (validateNative)
//   - log.level: trace, debug, info, warning, error (validateLog)
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/adamancini/hoist/internal/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for required fields and valid values.
func Validate(c *Config) error {
	var errors []string

	if err := validateEnvironment(c.Environment); err != nil {
		errors = append(errors, err.Error())
	}

	for field, value := range map[string]string{
		"watchdog":        c.Watchdog,
		"check_interval":  c.CheckInterval,
		"session.max_age": c.Session.MaxAge,
	} {
		if err := validateDuration(field, value); err != nil {
			errors = append(errors, err.Error())
		}
	}

	for _, err := range validateWeb(c) {
		errors = append(errors, err.Error())
	}

	if err := validateNative(c.Native); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateLog(c.Log); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateEnvironment(env types.Environment) error {
	if err := env.Validate(); err != nil {
		return ValidationError{
			Field:   "environment",
			Message: err.Error(),
		}
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" || value == "0" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration '%s'", value),
		}
	}
	if d < 0 {
		return ValidationError{
			Field:   field,
			Message: "duration must not be negative",
		}
	}
	return nil
}

func validateWeb(c *Config) []error {
	var errs []error

	if c.Web.ManifestURL == "" {
		// Without a manifest there is nothing to check; only an error where
		// automatic checks are expected to run.
		if c.Environment.IsProduction() {
			errs = append(errs, ValidationError{
				Field:   "web.manifest_url",
				Message: "manifest_url is required in production",
			})
		}
	} else if err := validateURL(c.Web.ManifestURL, "http", "https"); err != nil {
		errs = append(errs, ValidationError{
			Field:   "web.manifest_url",
			Message: err.Error(),
		})
	}

	if c.Web.EventsURL != "" {
		if err := validateURL(c.Web.EventsURL, "ws", "wss"); err != nil {
			errs = append(errs, ValidationError{
				Field:   "web.events_url",
				Message: err.Error(),
			})
		}
	}

	if c.Web.Quota != "" {
		if _, err := humanize.ParseBytes(c.Web.Quota); err != nil {
			errs = append(errs, ValidationError{
				Field:   "web.quota",
				Message: fmt.Sprintf("invalid size '%s'", c.Web.Quota),
			})
		}
	}

	if c.Web.KeepBundles < 0 {
		errs = append(errs, ValidationError{
			Field:   "web.keep_bundles",
			Message: "keep_bundles must be non-negative",
		})
	}

	return errs
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url '%s'", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("url '%s' must use %s", raw, strings.Join(schemes, " or "))
}

func validateNative(n NativeConfig) error {
	if !n.Enabled {
		return nil
	}
	if n.Owner == "" || n.Repo == "" {
		return ValidationError{
			Field:   "native",
			Message: "owner and repo are required when native updates are enabled",
		}
	}
	return nil
}

func validateLog(l LogConfig) error {
	if err := l.Level.Validate(); err != nil {
		return ValidationError{
			Field:   "log.level",
			Message: err.Error(),
		}
	}
	return nil
}
