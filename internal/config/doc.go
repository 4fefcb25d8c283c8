// Package config loads, normalizes, and validates storyreel configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and fills API credentials from the environment or a .env file
// next to the config. The Config type centralizes every knob the CLI and the
// generation collaborators need so they can be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
