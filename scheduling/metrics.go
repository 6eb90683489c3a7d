package scheduling

// Metrics receives engine events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ProposalServed(available bool, reason NoAvailabilityReason)
	ReservationConflict(kind ResourceKind)
	StatusChanged(to Status)
	ReassignmentRecorded(outcome ReassignmentOutcome)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ProposalServed(bool, NoAvailabilityReason) {}
func (NopMetrics) ReservationConflict(ResourceKind) {}
func (NopMetrics) StatusChanged(Status) {}
func (NopMetrics) ReassignmentRecorded(ReassignmentOutcome) {}
