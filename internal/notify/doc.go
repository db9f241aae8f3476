// Package notify delivers job lifecycle alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Delivery is fire-and-forget: a failed push never affects job
// state.
package notify
