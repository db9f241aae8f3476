// Package main hosts the Conveyor CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, falling back to direct store access when no
// daemon is running. It centralizes configuration resolution and API
// discovery so subcommands can focus on user experience instead of wiring.
package main
