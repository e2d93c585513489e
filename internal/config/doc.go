// Package config loads, normalizes, and validates mediadedup configuration.
//
// It supplies defaults, expands user paths, reads TOML files and turns the
// classifier and category sections into the values the engine consumes.
// Threshold and width problems are reported by Validate at startup rather
// than surfacing later as per-record failures.
package config
