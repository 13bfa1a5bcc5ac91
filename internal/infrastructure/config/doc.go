// Package config provides configuration loading and validation for FleetGlass Core.
//
// Configuration is loaded from a YAML file with environment variable overrides.
// All durations in the file are plain integers (seconds, minutes or hours as
// documented per field); helper methods convert them to time.Duration.
package config
