// Package config loads, normalizes, and validates reelforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELFORGE_DATABASE_URL and GOOGLE_APPS_SCRIPT_API_URL. The Config type
// centralizes every knob the daemon and CLI need: store backend, worker
// count, lease timing, retry policy, per-stage timeouts, and collaborator
// command templates.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
