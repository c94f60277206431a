package enums

// ReleaseOutcome is the result of one attempt to return a reserved unit to stock.
type ReleaseOutcome string

const (
	// ReleaseOutcomeReleased means the unit went back to in_stock.
	ReleaseOutcomeReleased ReleaseOutcome = "released"
	// ReleaseOutcomeAlreadyResolved means the unit was no longer reserved.
	ReleaseOutcomeAlreadyResolved ReleaseOutcome = "already_resolved"
	// ReleaseOutcomePending means the per-unit lock was busy; retry later.
	ReleaseOutcomePending ReleaseOutcome = "pending"
)

func (o ReleaseOutcome) String() string {
	return string(o)
}

// Terminal reports whether no further attempt is needed.
func (o ReleaseOutcome) Terminal() bool {
	return o == ReleaseOutcomeReleased || o == ReleaseOutcomeAlreadyResolved
}
