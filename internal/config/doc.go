// Package config loads, normalizes, and validates rdesktopd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: where the restore token and lock live, how consent is
// persisted with the desktop portal, which encoder pipeline is launched per
// monitor, and where clients connect.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
