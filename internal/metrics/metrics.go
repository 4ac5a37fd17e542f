// Package metrics exposes Prometheus counters for the lifecycle and
// hierarchy engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine counters registered on one registry.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	BulkItems     *prometheus.CounterVec
	TreeMutations *prometheus.CounterVec
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classifieds_transitions_total",
			Help: "Lifecycle transitions attempted, by action and outcome.",
		}, []string{"action", "outcome"}),
		BulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classifieds_bulk_items_total",
			Help: "Items processed in bulk transitions, by action and outcome.",
		}, []string{"action", "outcome"}),
		TreeMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classifieds_tree_mutations_total",
			Help: "Category tree mutations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
}

// NewUnregistered returns metrics on a private registry, for tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
