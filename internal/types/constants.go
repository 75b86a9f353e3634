// Package types provides type-safe constants for the hoist configuration system.
//
// This package centralizes the enumerated types used throughout the codebase,
// replacing magic strings with typed constants that provide compile-time safety
// and validation methods.
//
// SYNC REQUIREMENT: These types must stay in sync with
// internal/config/validate.go (runtime validation).
package types

import (
	"fmt"
	"strings"
)

// Environment represents the deployment context the client runs in.
type Environment string

const (
	// EnvironmentProduction enables automatic update checks at startup.
	EnvironmentProduction Environment = "production"
	// EnvironmentStaging behaves like development for update purposes.
	EnvironmentStaging Environment = "staging"
	// EnvironmentDevelopment disables automatic update checks.
	EnvironmentDevelopment Environment = "development"
)

// AllEnvironments returns all valid environments.
func AllEnvironments() []Environment {
	return []Environment{EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment}
}

// Validate checks if the Environment is a valid value.
func (e Environment) Validate() error {
	switch e {
	case EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment:
		return nil
	case "":
		return fmt.Errorf("environment is required")
	default:
		return fmt.Errorf("invalid environment '%s' (must be production, staging, or development)", e)
	}
}

// String returns the string representation of the Environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction returns true if the environment is production.
func (e Environment) IsProduction() bool {
	return e == EnvironmentProduction
}

// Default returns development if empty, otherwise the current environment.
func (e Environment) Default() Environment {
	if e == "" {
		return EnvironmentDevelopment
	}
	return e
}

// ParseEnvironment parses a string into an Environment.
// Accepts the short forms "prod" and "dev".
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(s) {
	case "prod":
		return EnvironmentProduction, nil
	case "dev":
		return EnvironmentDevelopment, nil
	}
	env := Environment(strings.ToLower(s))
	if err := env.Validate(); err != nil {
		return "", err
	}
	return env, nil
}

// Channel identifies one of the two update delivery channels.
type Channel string

const (
	// ChannelWeb is the background-update channel for the web bundle.
	ChannelWeb Channel = "web"
	// ChannelNative is the desktop binary auto-updater.
	ChannelNative Channel = "native"
)

// AllChannels returns all valid channels.
func AllChannels() []Channel {
	return []Channel{ChannelWeb, ChannelNative}
}

// Validate checks if the Channel is a valid value.
func (c Channel) Validate() error {
	switch c {
	case ChannelWeb, ChannelNative:
		return nil
	case "":
		return fmt.Errorf("channel is required")
	default:
		return fmt.Errorf("invalid channel '%s' (must be web or native)", c)
	}
}

// String returns the string representation of the Channel.
func (c Channel) String() string {
	return string(c)
}

// ParseChannel parses a string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(s))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// LogLevel represents the minimum severity written to the log.
type LogLevel string

const (
	LogLevelTrace   LogLevel = "trace"
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// AllLogLevels returns all valid log levels, most verbose first.
func AllLogLevels() []LogLevel {
	return []LogLevel{LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError}
}

// Validate checks if the LogLevel is a valid value.
// Empty is valid and means info.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, "":
		return nil
	default:
		return fmt.Errorf("invalid log level '%s' (must be trace, debug, info, warning, or error)", l)
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	return string(l)
}

// Default returns info if empty, otherwise the current level.
func (l LogLevel) Default() LogLevel {
	if l == "" {
		return LogLevelInfo
	}
	return l
}

// ParseLogLevel parses a string into a LogLevel. "warn" is accepted for warning.
func ParseLogLevel(s string) (LogLevel, error) {
	if strings.EqualFold(s, "warn") {
		return LogLevelWarning, nil
	}
	l := LogLevel(strings.ToLower(s))
	if err := l.Validate(); err != nil {
		return "", err
	}
	return l, nil
}
