// Package relay pushes test progress and browser observations to websocket
// subscribers grouped by test id.
package relay

import (
	"context"
	"sort"
	"sync"
)

// Channel is one subscriber connection. Send must be safe to call from
// several goroutines; implementations serialize their own writes.
type Channel interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Registry maps test ids to their subscriber channels.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[Channel]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[Channel]struct{})}
}

// Register adds ch to testID. Registering the same channel twice is a no-op.
func (r *Registry) Register(testID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[testID]
	if !ok {
		set = make(map[Channel]struct{})
		r.sessions[testID] = set
	}
	set[ch] = struct{}{}
}

// Unregister removes ch from testID and drops the session once it is empty.
// It reports whether ch was registered.
func (r *Registry) Unregister(testID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[testID]
	if !ok {
		return false
	}
	if _, ok := set[ch]; !ok {
		return false
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.sessions, testID)
	}
	return true
}

// ChannelsFor returns a snapshot of the channels subscribed to testID. The
// slice is safe to iterate while the registry changes.
func (r *Registry) ChannelsFor(testID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[testID]
	out := make([]Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// SessionCount returns the number of test ids with at least one subscriber.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SubscriberCount returns the number of registered channels.
func (r *Registry) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.sessions {
		n += len(set)
	}
	return n
}

// Sessions lists the test ids with subscribers, sorted.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear closes and forgets every channel.
func (r *Registry) Clear() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]map[Channel]struct{})
	r.mu.Unlock()

	for _, set := range sessions {
		for ch := range set {
			_ = ch.Close()
		}
	}
}
