// Package metrics defines the Prometheus collectors of the orchestrator.
//
// Collector satisfies kernel.Metrics and also records HTTP requests for the
// httpapi middleware. Collectors are registered with the Registerer passed to
// New so that tests can use a private registry.
package metrics
