package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Host == "" {
		errs = append(errs, &ValidationError{Field: "database.host", Message: "is required"})
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "database.port", Message: "must be between 1 and 65535"})
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.Notifier.MaxAttempts < 1 {
		errs = append(errs, &ValidationError{Field: "notifier.max_attempts", Message: "must be at least 1"})
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		errs = append(errs, c.validateSource(i, seen)...)
	}
	errs = append(errs, c.validatePrefixes()...)

	return errors.Join(errs...)
}

func (c *Config) validateSource(i int, seen map[string]bool) []error {
	s := c.Sources[i]
	prefix := fmt.Sprintf("sources[%d]", i)

	var errs []error

	if s.Name == "" {
		errs = append(errs, &ValidationError{Field: prefix + ".name", Message: "is required"})
	} else if seen[s.Name] {
		errs = append(errs, &ValidationError{Field: prefix + ".name", Message: "duplicate source " + s.Name})
	}
	seen[s.Name] = true

	if s.Kind != KindDocuments && s.Kind != KindEvents {
		errs = append(errs, &ValidationError{Field: prefix + ".kind", Message: "must be documents or events"})
	}

	switch s.Destination.Family {
	case FamilyTelegram:
		// A missing bot token disables telegram delivery instead of failing startup.
	case FamilyRedis:
		if s.Enabled && !c.Redis.Enabled() {
			errs = append(errs, &ValidationError{Field: "redis.address", Message: "is required for " + s.Name})
		}
	default:
		errs = append(errs, &ValidationError{Field: prefix + ".destination.family", Message: "must be telegram or redis"})
	}

	if !s.Enabled {
		return errs
	}

	if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &ValidationError{Field: prefix + ".url", Message: "must be an absolute URL"})
	}

	return errs
}

// validatePrefixes rejects enabled sources sharing a settings prefix, since
// their loops would read and consume the same settings keys.
func (c *Config) validatePrefixes() []error {
	var errs []error

	owner := make(map[string]string, len(c.Sources))
	for i, s := range c.Sources {
		if !s.Enabled {
			continue
		}
		if other, taken := owner[s.SettingsPrefix]; taken {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("sources[%d].settings_prefix", i),
				Message: fmt.Sprintf("%q already used by %s", s.SettingsPrefix, other),
			})
			continue
		}
		owner[s.SettingsPrefix] = s.Name
	}

	return errs
}
