package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "session.max_sessions")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validatePersistence()...)
	errors = append(errors, c.validateRateLimit()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MaxSessions < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_sessions",
			Value:   c.Session.MaxSessions,
			Message: "must be at least 1",
		})
	}
	if c.Session.RestartBudget < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.restart_budget",
			Value:   c.Session.RestartBudget,
			Message: "must not be negative",
		})
	}
	if c.Session.QueryTimeoutMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.query_timeout_ms",
			Value:   c.Session.QueryTimeoutMs,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validatePersistence validates the PersistenceConfig
func (c *Config) validatePersistence() []ValidationError {
	var errors []ValidationError

	if c.Persistence.MaxRecordBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "persistence.max_record_bytes",
			Value:   c.Persistence.MaxRecordBytes,
			Message: "must be at least 1",
		})
	}
	if c.Persistence.CleanupMaxAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "persistence.cleanup_max_age_days",
			Value:   c.Persistence.CleanupMaxAgeDays,
			Message: "must not be negative",
		})
	}

	return errors
}

// validateRateLimit validates the RateLimitConfig
func (c *Config) validateRateLimit() []ValidationError {
	var errors []ValidationError

	if c.RateLimit.DefaultLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "ratelimit.default_limit",
			Value:   c.RateLimit.DefaultLimit,
			Message: "must be at least 1",
		})
	}
	if c.RateLimit.DefaultWindowSecs < 1 {
		errors = append(errors, ValidationError{
			Field:   "ratelimit.default_window_secs",
			Value:   c.RateLimit.DefaultWindowSecs,
			Message: "must be at least 1",
		})
	}
	for op, lim := range c.RateLimit.Operations {
		if lim.Limit < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("ratelimit.operations.%s.limit", op),
				Value:   lim.Limit,
				Message: "must be at least 1",
			})
		}
		if lim.WindowSecs < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("ratelimit.operations.%s.window_secs", op),
				Value:   lim.WindowSecs,
				Message: "must be at least 1",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
