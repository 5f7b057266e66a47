// Package config holds the fail-open environment loaders shared by the
// entrypoints. A malformed variable never stops a process: the default is
// kept and a warning is returned so the caller can log it and raise the
// fallback metrics.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigLoadResult is the outcome of loading one configuration value.
//
// Fields:
//   - Value: the loaded value, or the default when a fallback was applied
//   - Warnings: one message per fallback applied
//   - FallbackApplied: true when the environment value was rejected
//
// Example:
//
//	result := LoadEnvDuration("ARCHIVE_RUN_TIMEOUT", 30*time.Minute, ValidatePositiveDuration)
//	for _, w := range result.Warnings {
//	    slog.Warn("configuration fallback", slog.String("warning", w))
//	}
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

func valueResult(v interface{}) ConfigLoadResult {
	return ConfigLoadResult{Value: v}
}

func fallbackResult(envKey, raw string, reason interface{}, defaultValue interface{}) ConfigLoadResult {
	return ConfigLoadResult{
		Value: defaultValue,
		Warnings: []string{fmt.Sprintf(
			"Invalid %s='%s': %v, falling back to default '%v'",
			envKey, raw, reason, defaultValue,
		)},
		FallbackApplied: true,
	}
}

// LoadEnvString returns the variable, or defaultValue when it is unset or
// empty. No validation is performed.
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string and validates it. An unset variable
// yields the default without a warning; a value rejected by validator
// yields the default with a warning. validator may be nil.
//
// Warning format:
//
//	"Invalid {envKey}='{value}': {error}, falling back to default '{default}'"
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return valueResult(defaultValue)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallbackResult(envKey, value, err, defaultValue)
		}
	}
	return valueResult(value)
}

// LoadEnvDuration loads a Go duration string ("30s", "5m", "1h30m").
// Parse errors and validation errors both fall back to defaultValue.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return valueResult(defaultValue)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallbackResult(envKey, raw, err, defaultValue)
	}
	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallbackResult(envKey, raw, err, defaultValue)
		}
	}
	return valueResult(parsed)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return valueResult(defaultValue)
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallbackResult(envKey, raw, "invalid integer format", defaultValue)
	}
	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallbackResult(envKey, raw, err, defaultValue)
		}
	}
	return valueResult(parsed)
}

// LoadEnvBool loads a boolean.
//
// Accepted values:
//   - true: "1", "t", "T", "true", "TRUE", "True"
//   - false: "0", "f", "F", "false", "FALSE", "False"
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return valueResult(defaultValue)
	}

	switch raw {
	case "1", "t", "T", "true", "TRUE", "True":
		return valueResult(true)
	case "0", "f", "F", "false", "FALSE", "False":
		return valueResult(false)
	default:
		return fallbackResult(envKey, raw, "invalid boolean format, expected 'true' or 'false'", defaultValue)
	}
}

// LoadEnvList loads a comma separated list. Blank entries are dropped.
// An unset variable, or one with only blank entries, yields defaultValue.
func LoadEnvList(envKey string, defaultValue []string) []string {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
