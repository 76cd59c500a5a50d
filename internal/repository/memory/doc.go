// Package memory holds in-memory repository implementations. They back
// the service and orchestrator tests and the CLI's dry runs. All types are
// safe for concurrent use.
package memory
