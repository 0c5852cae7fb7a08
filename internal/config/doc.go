// Package config loads, normalizes, and validates reelforge configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LLM_API_KEY. The Config type centralizes every knob the CLI and the
// orchestrator need, so data directories, backend endpoints, and workflow
// selection policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical workflow names, and clear validation errors.
package config
