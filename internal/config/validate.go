package config

import (
	"fmt"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/types"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values.
func Validate(c *Config) error {
	var errors []string

	if strings.TrimSpace(c.Registry) == "" {
		errors = append(errors, ValidationError{Field: "registry", Message: "registry is required"}.Error())
	}

	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			errors = append(errors, ValidationError{Field: "log.level", Message: err.Error()}.Error())
		}
	}

	if err := types.NotifyMode(strings.ToLower(c.Notify.Mode)).Validate(); err != nil {
		errors = append(errors, ValidationError{Field: "notify.mode", Message: err.Error()}.Error())
	}

	if err := validateMonitor(c.Monitor); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateHTTP(c.HTTP); err != nil {
		errors = append(errors, err.Error())
	}

	for _, err := range validateHost(c.Host) {
		errors = append(errors, err.Error())
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metrics.listen",
				Message: fmt.Sprintf("invalid address '%s' (must be host:port)", c.Metrics.Listen),
			}.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateMonitor(m MonitorConfig) error {
	if m.ShutdownTimeout < 0 {
		return ValidationError{Field: "monitor.shutdown_timeout", Message: "must not be negative"}
	}
	if m.Debounce < 0 {
		return ValidationError{Field: "monitor.debounce", Message: "must not be negative"}
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	if h.Timeout < 0 {
		return ValidationError{Field: "http.timeout", Message: "must not be negative"}
	}
	if h.Retries != nil && *h.Retries < 0 {
		return ValidationError{Field: "http.retries", Message: "must not be negative"}
	}
	if h.Password != "" && h.Username == "" {
		return ValidationError{Field: "http.username", Message: "username is required when password is set"}
	}
	if h.Token != "" && h.Username != "" {
		return ValidationError{Field: "http.token", Message: "use either token or username/password, not both"}
	}
	return nil
}

// validateHost requires operations that undo each other to be configured together.
func validateHost(h HostConfig) []error {
	var errs []error
	pairs := []struct {
		field, other string
		a, b         []string
	}{
		{"host.load", "host.unload", h.Load, h.Unload},
		{"host.install", "host.uninstall", h.Install, h.Uninstall},
	}
	for _, p := range pairs {
		if (len(p.a) == 0) != (len(p.b) == 0) {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("%s and %s must be set together", p.field, p.other),
			})
		}
	}
	return errs
}
