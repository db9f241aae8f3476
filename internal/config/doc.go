// Package config loads, normalizes, and validates Conveyor configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CONVEYOR_REDIS_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need: tenant scope, worker cadence, retry bounds, bus settings, and
// log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a validated tenant filter, and clear validation errors.
package config
