// Package config loads, normalizes, and validates Lightbox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LIGHTBOX_CAPTURE_DIR. The Config type centralizes every knob the daemon and
// CLI need so the media store, capture ingester, and review pipeline discover
// their settings in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
