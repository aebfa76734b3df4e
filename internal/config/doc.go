// Package config loads, validates, and defaults Skiff's TOML configuration.
package config
