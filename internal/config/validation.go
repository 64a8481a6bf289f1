package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateHousekeeper()...)
	errors = append(errors, c.validateControl()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors
	db := &c.Database

	switch db.Driver {
	case DriverSQLite:
		if db.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "database.path",
				Message: "path is required for the sqlite driver",
			})
		}
		return errors
	case DriverMySQL, "":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.driver",
			Message: "driver must be 'mysql' or 'sqlite'",
		})
		return errors
	}

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   "database.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateHousekeeper() ValidationErrors {
	var errors ValidationErrors
	hk := &c.Housekeeper

	if hk.FrequencyHours < 0 || hk.FrequencyHours > 24 {
		errors = append(errors, ValidationError{
			Field:   "housekeeper.frequency_hours",
			Message: "frequency_hours must be between 0 and 24",
		})
	}

	if hk.ProxyOfflineBufferHours < 1 || hk.ProxyOfflineBufferHours > 720 {
		errors = append(errors, ValidationError{
			Field:   "housekeeper.proxy_offline_buffer_hours",
			Message: "proxy_offline_buffer_hours must be between 1 and 720",
		})
	}

	if hk.ProxyLocalBufferHours < 0 || hk.ProxyLocalBufferHours > 720 {
		errors = append(errors, ValidationError{
			Field:   "housekeeper.proxy_local_buffer_hours",
			Message: "proxy_local_buffer_hours must be between 0 and 720",
		})
	}

	if hk.StartupDelayMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "housekeeper.startup_delay_minutes",
			Message: "startup_delay_minutes cannot be negative",
		})
	}

	if hk.TimeoutSeconds < 1 || hk.TimeoutSeconds > 30 {
		errors = append(errors, ValidationError{
			Field:   "housekeeper.timeout_seconds",
			Message: "timeout_seconds must be between 1 and 30",
		})
	}

	return errors
}

func (c *Config) validateControl() ValidationErrors {
	var errors ValidationErrors

	if c.Control.Socket == "" {
		errors = append(errors, ValidationError{
			Field:   "control.socket",
			Message: "socket path is required",
		})
	}

	return errors
}

func (c *Config) validateMetrics() ValidationErrors {
	var errors ValidationErrors

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, ValidationError{
			Field:   "metrics.listen",
			Message: "listen address is required when metrics are enabled",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
