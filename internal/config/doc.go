// Package config loads and validates the TOML configuration for the clipnote
// daemon and CLI. Defaults live in defaults.go; a sample file is written to
// the default location on first run.
package config
