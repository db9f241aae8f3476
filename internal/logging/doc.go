// Package logging builds the slog loggers used across Conveyor and defines
// the standardized structured field keys shared by the daemon, the stage
// workers, and the event bridge. Use WithContext to carry job/stage
// identifiers into every log line emitted while a unit of work is in flight.
package logging
