// Package api defines wire-format types and converters for the daemon HTTP
// API. It translates internal queue models into transport-friendly DTOs that
// the CLI and other consumers can render without coupling to internal types.
package api
