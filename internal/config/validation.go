package config

import (
	"fmt"
	"strings"
)

// ValidationError records a single invalid field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors accumulates every ValidationError found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for values the daemon cannot start
// with, returning every problem found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, validatePlatform(&c.Platform)...)
	errs = append(errs, validatePolicy(&c.Policy)...)
	errs = append(errs, validateAdminAPI(&c.AdminAPI)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePlatform(p *PlatformConfig) ValidationErrors {
	var errs ValidationErrors
	for _, r := range p.Resources {
		if r.Path == "" {
			errs = append(errs, ValidationError{"platform.resources[].path", r.Path, "must not be empty"})
		}
		if r.Total == 0 {
			errs = append(errs, ValidationError{"platform.resources[].total", r.Total, "must be greater than zero"})
		}
	}
	if len(p.BindingDomains) == 0 {
		errs = append(errs, ValidationError{"platform.binding_domains", p.BindingDomains, "must configure at least one binding domain"})
	}
	return errs
}

func validatePolicy(p *PolicyConfig) ValidationErrors {
	var errs ValidationErrors
	if p.Name == "" {
		errs = append(errs, ValidationError{"policy.name", p.Name, "must not be empty"})
	}
	if p.Interval <= 0 {
		errs = append(errs, ValidationError{"policy.interval", p.Interval, "must be a positive duration"})
	}
	return errs
}

func validateAdminAPI(a *AdminAPIConfig) ValidationErrors {
	var errs ValidationErrors
	if a.Listen == "" {
		errs = append(errs, ValidationError{"admin_api.listen", a.Listen, "must not be empty"})
	}
	if a.RateLimit.Enabled && a.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, ValidationError{"admin_api.rate_limit.requests_per_second", a.RateLimit.RequestsPerSecond, "must be greater than zero when rate limiting is enabled"})
	}
	if a.JWT.Secret == "" {
		errs = append(errs, ValidationError{"admin_api.jwt.secret", "", "must be set (no default signing secret is shipped)"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors
	if m.Enabled && m.Listen == "" {
		errs = append(errs, ValidationError{"metrics.listen", m.Listen, "must not be empty when metrics are enabled"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", l.Level, "must be one of debug, info, warn, error"})
	}
	switch l.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{"logging.format", l.Format, "must be one of json, console"})
	}
	return errs
}
