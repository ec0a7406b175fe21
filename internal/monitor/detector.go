package monitor

import (
	"slices"

	"tapwatch/internal/state"
)

// Decision is what one poll cycle should announce. At most one of the fields
// is set.
type Decision struct {
	// AnnounceStart fires on the Quiet->Active edge only: the event-started
	// broadcast goes to both channels, exactly once per transition.
	AnnounceStart bool
	// AnnounceProgress fires while remaining Quiet when the counter or the
	// contributor sequence moved since the last persisted state.
	AnnounceProgress bool
}

// Detect compares the new snapshot against the persisted baseline.
//
// The Active->Quiet edge is deliberately silent: the event ending is visible
// on the site itself and the original product never announced it. Repeating
// Active cycles announce nothing either, which is what makes the start alert
// idempotent under repeated polls.
//
// Contributor comparison is structural over the full ordered sequence: a
// reorder with identical values is a change (ranking matters), while an
// identical re-fetch never triggers a message.
func Detect(prev state.Record, snap Snapshot) Decision {
	if snap.EventActive {
		return Decision{AnnounceStart: !prev.EventActive}
	}
	if prev.EventActive {
		return Decision{} // ended silently; state update only
	}
	changed := prev.Counter != snap.Counter ||
		!slices.Equal(prev.Contributors, snap.Contributors)
	return Decision{AnnounceProgress: changed}
}
