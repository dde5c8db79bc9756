// Package config - validation logic for configuration values
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

// Validate checks all configuration values for validity
func (c *Config) Validate() error {
	var errs []error

	// Validate throttle settings
	if c.Throttle.MinDelaySec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "throttle.min_delay_seconds",
			Message: "must be greater than 0",
		})
	}

	if c.Throttle.MaxDelaySec < c.Throttle.MinDelaySec {
		errs = append(errs, ValidationError{
			Field:   "throttle.max_delay_seconds",
			Message: "must be greater than or equal to min_delay_seconds",
		})
	}

	if c.Throttle.BurstThreshold <= 0 {
		errs = append(errs, ValidationError{
			Field:   "throttle.burst_threshold",
			Message: "must be greater than 0",
		})
	}

	// Validate scroll settings
	if c.Scroll.StepMinPx <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scroll.step_min_px",
			Message: "must be greater than 0",
		})
	}

	if c.Scroll.StepMaxPx < c.Scroll.StepMinPx {
		errs = append(errs, ValidationError{
			Field:   "scroll.step_max_px",
			Message: "must be greater than or equal to step_min_px",
		})
	}

	if c.Scroll.PauseMaxSec < c.Scroll.PauseMinSec {
		errs = append(errs, ValidationError{
			Field:   "scroll.pause_max_seconds",
			Message: "must be greater than or equal to pause_min_seconds",
		})
	}

	if c.Scroll.ScrollBackChance < 0 || c.Scroll.ScrollBackChance > 1 {
		errs = append(errs, ValidationError{
			Field:   "scroll.scroll_back_chance",
			Message: "must be between 0 and 1",
		})
	}

	// Validate session settings
	if c.Session.MaxRetries <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_retries",
			Message: "must be greater than 0",
		})
	}

	if c.Session.CaptchaSolveTimeoutSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.captcha_solve_timeout_seconds",
			Message: "must be greater than 0",
		})
	}

	// Validate target settings
	if c.Target.MaxReviewPages <= 0 {
		errs = append(errs, ValidationError{
			Field:   "target.max_review_pages",
			Message: "must be greater than 0",
		})
	}

	// Validate proxy descriptors
	for _, p := range c.Proxies {
		parts := strings.Split(p, ":")
		if len(parts) != 2 && len(parts) != 4 {
			errs = append(errs, ValidationError{
				Field:   "proxies",
				Message: fmt.Sprintf("%q must be host:port or host:port:user:pass", p),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateForScrape checks if config is valid for the scrape command
func (c *Config) ValidateForScrape() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Target.ProductURL == "" {
		return ValidationError{
			Field:   "target.product_url",
			Message: "a product URL is required (config file, -url flag, or PRODUCT_URL environment variable)",
		}
	}

	return nil
}
