package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/goforbroke1006/argwait"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "loop.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

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

// ValidLogLevels returns the accepted logging.level values
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted logging.format values
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidOutputFormats returns the accepted output.format values
func ValidOutputFormats() []string {
	return []string{"text", "json", "yaml"}
}

// ValidErrorPolicies returns the accepted errors.policy values
func ValidErrorPolicies() []string {
	return []string{string(argwait.Fatal), string(argwait.Hold)}
}

// Validate checks the Config and returns every problem found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateWalk()...)

	if c.Loop.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "loop.workers",
			Value:   c.Loop.Workers,
			Message: "must be positive",
		})
	}

	errors = append(errors, oneOf("errors.policy", c.Errors.Policy, ValidErrorPolicies())...)
	errors = append(errors, oneOf("logging.level", c.Logging.Level, ValidLogLevels())...)
	errors = append(errors, oneOf("logging.format", c.Logging.Format, ValidLogFormats())...)
	errors = append(errors, oneOf("output.format", c.Output.Format, ValidOutputFormats())...)

	return errors
}

func (c *Config) validateWalk() []ValidationError {
	var errors []ValidationError

	if c.Walk.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "walk.max_depth",
			Value:   c.Walk.MaxDepth,
			Message: "must be non-negative",
		})
	}

	lists := []struct {
		field    string
		patterns []string
	}{
		{"walk.include", c.Walk.Include},
		{"walk.exclude", c.Walk.Exclude},
	}
	for _, list := range lists {
		for _, pattern := range list.patterns {
			if _, err := glob.Compile(pattern); err != nil {
				errors = append(errors, ValidationError{
					Field:   list.field,
					Value:   pattern,
					Message: fmt.Sprintf("invalid glob pattern: %v", err),
				})
			}
		}
	}

	return errors
}

func oneOf(field, value string, valid []string) []ValidationError {
	if slices.Contains(valid, value) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
	}}
}
