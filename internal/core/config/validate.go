package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationResult holds the outcome of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
	Checks   []ValidationCheck
}

// ValidationError represents a configuration error.
type ValidationError struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidationCheck represents a successful validation check.
type ValidationCheck struct {
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Details  []string `json:"details,omitempty"`
}

// IsValid returns true if there are no errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this also checks file access and reports passing
// checks for display.
func (c *Config) ValidateDeep(configPath string) *ValidationResult {
	result := &ValidationResult{}

	c.validateFileAccess(result, configPath)
	c.validateServer(result)
	c.validateIntervals(result)
	c.validateAttachmentRules(result)

	return result
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(result *ValidationResult, configPath string) {
	details := []string{}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			details = append(details, fmt.Sprintf("Config file: %s (found)", configPath))
			if info.IsDir() {
				result.Errors = append(result.Errors, ValidationError{
					Category: "File Access",
					Item:     "config file",
					Message:  fmt.Sprintf("%s is a directory, not a file", configPath),
				})
			}
		} else if os.IsNotExist(err) {
			details = append(details, fmt.Sprintf("Config file: %s (not found, using defaults)", configPath))
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Category: "File Access",
				Item:     "config file",
				Message:  fmt.Sprintf("cannot access %s: %v", configPath, err),
			})
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				result.Errors = append(result.Errors, ValidationError{
					Category: "File Access",
					Item:     "data_dir",
					Message:  fmt.Sprintf("%s exists but is not a directory", c.DataDir),
				})
			} else {
				details = append(details, fmt.Sprintf("Data directory: %s (exists)", c.DataDir))
			}
		} else if os.IsNotExist(err) {
			details = append(details, fmt.Sprintf("Data directory: %s (will be created)", c.DataDir))
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Category: "File Access",
				Item:     "data_dir",
				Message:  fmt.Sprintf("cannot access %s: %v", c.DataDir, err),
			})
		}
	}

	if len(details) > 0 {
		result.Checks = append(result.Checks, ValidationCheck{
			Category: "File Access",
			Message:  "File paths validated",
			Details:  details,
		})
	}
}

// validateServer checks the server URL and actor identity.
func (c *Config) validateServer(result *ValidationResult) {
	if c.ServerURL == "" {
		result.Errors = append(result.Errors, ValidationError{
			Category: "Server",
			Item:     "server_url",
			Message:  "server_url is required",
			Fix:      "Set server_url to your portal's API base URL",
		})
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		result.Errors = append(result.Errors, ValidationError{
			Category: "Server",
			Item:     "server_url",
			Message:  fmt.Sprintf("%q is not an absolute URL", c.ServerURL),
		})
	} else {
		result.Checks = append(result.Checks, ValidationCheck{
			Category: "Server",
			Message:  fmt.Sprintf("Server URL: %s", c.ServerURL),
		})
	}

	if c.ActorID == "" {
		result.Errors = append(result.Errors, ValidationError{
			Category: "Server",
			Item:     "actor_id",
			Message:  "actor_id is required",
			Fix:      "Set actor_id to your portal user ID",
		})
	}

	if c.Token == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Category: "Server",
			Item:     "token",
			Message:  "no stored token; pass --token or set MUSTER_TOKEN",
		})
	}
}

// validateIntervals checks timer settings.
func (c *Config) validateIntervals(result *ValidationResult) {
	details := []string{
		fmt.Sprintf("Poll interval: %s", c.PollInterval.Std()),
		fmt.Sprintf("Presence interval: %s", c.PresenceInterval.Std()),
		fmt.Sprintf("Request timeout: %s", c.RequestTimeout.Std()),
	}

	if c.PollInterval > 0 && c.PollInterval.Std() < 5*time.Second {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Category: "Intervals",
			Item:     "poll_interval",
			Message:  "poll intervals under 5s put needless load on the portal",
		})
	}

	result.Checks = append(result.Checks, ValidationCheck{
		Category: "Intervals",
		Message:  "Timer settings",
		Details:  details,
	})
}

// validateAttachmentRules checks blocked-pattern glob syntax.
func (c *Config) validateAttachmentRules(result *ValidationResult) {
	if len(c.Attachments.BlockedPatterns) == 0 {
		result.Checks = append(result.Checks, ValidationCheck{
			Category: "Attachments",
			Message:  "No blocked patterns defined",
		})
		return
	}

	details := []string{}
	for i, pattern := range c.Attachments.BlockedPatterns {
		if !doublestar.ValidatePattern(pattern) {
			result.Errors = append(result.Errors, ValidationError{
				Category: "Attachments",
				Item:     fmt.Sprintf("pattern %d", i),
				Message:  fmt.Sprintf("invalid glob %q", pattern),
				Fix:      "Use doublestar glob syntax, e.g. '**/*.exe'",
			})
		} else {
			details = append(details, fmt.Sprintf("Pattern %d: %s (valid)", i, pattern))
		}
	}

	if len(details) > 0 {
		result.Checks = append(result.Checks, ValidationCheck{
			Category: "Attachments",
			Message:  fmt.Sprintf("%d blocked pattern(s) defined", len(c.Attachments.BlockedPatterns)),
			Details:  details,
		})
	}
}
