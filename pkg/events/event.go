package events

import (
	"sync/atomic"
	"time"
)

// InvalidID marks an event that has not passed through a Sequencer yet. It is
// the zero value, so struct literals start unsequenced.
const InvalidID int64 = 0

// Event carries the provenance shared by actions and observations.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Source    EventSource `json:"source"`
}

// NewEvent returns an unsequenced event stamped with the current time.
func NewEvent(source EventSource) Event {
	return Event{
		ID:        InvalidID,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// HasID reports whether the event was assigned an id.
func (e Event) HasID() bool { return e.ID != InvalidID }

// Sequencer hands out monotonically increasing event ids, starting at 1.
// The zero value is ready to use and safe for concurrent callers.
type Sequencer struct {
	next atomic.Int64
}

// Next returns the next id.
func (s *Sequencer) Next() int64 {
	return s.next.Add(1)
}

// Assign gives e an id unless it already has one.
func (s *Sequencer) Assign(e *Event) {
	if e == nil || e.HasID() {
		return
	}
	e.ID = s.Next()
}
