// Package metrics provides Prometheus instrumentation for the scheduling engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// Prometheus implements scheduling.Metrics. Collectors are created and
// registered on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	proposals     *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	reassignments *prometheus.CounterVec
}

var _ scheduling.Metrics = (*Prometheus)(nil)

// NewPrometheus creates a collector. A nil reg uses
// prometheus.DefaultRegisterer; an empty namespace becomes "gearguard".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "gearguard"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.proposals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduling",
			Name:      "proposals_total",
			Help:      "Availability proposals served by outcome (available, no_work_center, no_technician).",
		}, []string{"outcome"})

		p.conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduling",
			Name:      "reservation_conflicts_total",
			Help:      "Reservations lost to a concurrent booking, by resource kind.",
		}, []string{"resource"})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Committed request status changes by target status.",
		}, []string{"to"})

		p.reassignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lifecycle",
			Name:      "reassignments_total",
			Help:      "Reassignment attempts by outcome (applied, rejected).",
		}, []string{"outcome"})

		p.reg.MustRegister(p.proposals, p.conflicts, p.transitions, p.reassignments)
	})
}

func (p *Prometheus) ProposalServed(available bool, reason scheduling.NoAvailabilityReason) {
	p.ensureRegistered()
	outcome := "available"
	if !available {
		outcome = string(reason)
	}
	p.proposals.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ReservationConflict(kind scheduling.ResourceKind) {
	p.ensureRegistered()
	p.conflicts.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) StatusChanged(to scheduling.Status) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(string(to)).Inc()
}

func (p *Prometheus) ReassignmentRecorded(outcome scheduling.ReassignmentOutcome) {
	p.ensureRegistered()
	p.reassignments.WithLabelValues(string(outcome)).Inc()
}
