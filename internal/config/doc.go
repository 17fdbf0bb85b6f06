// Package config loads feedline configuration from JSON or YAML files with a
// FEEDLINE_* environment variable overlay, and resolves the default data
// directory per host OS.
package config
