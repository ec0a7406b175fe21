package monitor

import (
	"time"

	"tapwatch/internal/state"
)

// Snapshot is one decoded observation of the bonus page. Produced fresh on
// every fetch, never partially updated.
type Snapshot struct {
	// EventActive reports whether the page currently announces a freeleech.
	EventActive bool
	// Counter is the bonus pool remainder; -1 is the unparsed sentinel and
	// never comes out of a successful fetch.
	Counter int
	// Contributors in page order. Order is part of the value: the ranking is
	// meaningful to subscribers.
	Contributors []state.Contributor
}

// Record converts the snapshot into its durable form.
func (s Snapshot) Record() state.Record {
	return state.Record{
		EventActive:  s.EventActive,
		Counter:      s.Counter,
		Contributors: s.Contributors,
		UpdatedAt:    time.Now(),
	}
}
