package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	ErrInvalidPort        = errors.New("invalid port: must be between 1 and 65535")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")
	ErrInvalidMaxPages    = errors.New("invalid max pages: must be positive")
	ErrInvalidDepth       = errors.New("invalid max depth: must be non-negative")
	ErrInvalidDelay       = errors.New("invalid politeness delay: must be non-negative")
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidContexts    = errors.New("invalid render contexts: must be positive when rendering is enabled")
	ErrNoAPIKeys          = errors.New("auth is enabled but no API keys are configured")
	ErrInvalidRate        = errors.New("invalid rate limit: rps and burst must be positive")

	// ErrConfigNotFound is returned when an explicit config file is missing.
	ErrConfigNotFound = errors.New("configuration file not found")
)
