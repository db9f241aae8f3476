// Package daemon wires the job store, stage workers, transfer event bridge,
// and observability endpoints into a single-instance background service.
package daemon
