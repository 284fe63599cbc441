// Package metrics exposes counters and histograms for the request
// executor layer using VictoriaMetrics' lightweight client library - the
// same family of metrics client the driver's ambient stack favors over a
// hand-rolled counter map.
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Registry scopes all metrics emitted by one Store so that two stores in
// the same process (e.g. in tests) don't collide on metric names.
type Registry struct {
	set    *metrics.Set
	prefix string
}

// NewRegistry creates a registry scoped to storeID and registers it with
// the default VictoriaMetrics registry so it is picked up by WritePrometheus.
func NewRegistry(storeID string) *Registry {
	set := metrics.NewSet()
	metrics.RegisterSet(set)
	return &Registry{set: set, prefix: fmt.Sprintf(`store=%q`, storeID)}
}

// Unregister removes the registry's metric set from the default registry.
func (r *Registry) Unregister() {
	metrics.UnregisterSet(r.set, true)
}

// RequestCount increments the request counter for a node and outcome.
func (r *Registry) RequestCount(nodeURL, outcome string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`docdb_requests_total{%s,node=%q,outcome=%q}`, r.prefix, nodeURL, outcome)).Inc()
}

// RetryCount increments the retry counter for a node.
func (r *Registry) RetryCount(nodeURL string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`docdb_retries_total{%s,node=%q}`, r.prefix, nodeURL)).Inc()
}

// ObserveLatency records one request's wall-clock latency in seconds.
func (r *Registry) ObserveLatency(nodeURL string, seconds float64) {
	r.set.GetOrCreateHistogram(fmt.Sprintf(`docdb_request_duration_seconds{%s,node=%q}`, r.prefix, nodeURL)).Update(seconds)
}

// TopologyRefreshCount increments the topology-refresh counter.
func (r *Registry) TopologyRefreshCount() {
	r.set.GetOrCreateCounter(fmt.Sprintf(`docdb_topology_refresh_total{%s}`, r.prefix)).Inc()
}

// SessionCommitCount increments the session commit counter with a
// success/failure label.
func (r *Registry) SessionCommitCount(outcome string) {
	r.set.GetOrCreateCounter(fmt.Sprintf(`docdb_session_commits_total{%s,outcome=%q}`, r.prefix, outcome)).Inc()
}
