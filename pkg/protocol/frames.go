// Package protocol defines the JSON payloads pushed to relay subscribers.
// This package is importable by observers written in Go.
package protocol

import "time"

// TimestampLayout is the format of every "timestamp" field on the wire.
const TimestampLayout = time.RFC3339Nano

// Event is a payload that can be broadcast to a test session.
type Event interface {
	// EventType returns the value of the "type" field.
	EventType() string
	// StampIfUnset fills the timestamp when the caller left it empty.
	StampIfUnset(now time.Time)
}

// Envelope holds the fields common to every payload.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (e *Envelope) EventType() string { return e.Type }

func (e *Envelope) StampIfUnset(now time.Time) {
	if e.Timestamp == "" {
		e.Timestamp = FormatTimestamp(now)
	}
}

// FormatTimestamp renders t the way payload timestamps are sent.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ConnectionEvent confirms a subscriber joined a test session.
type ConnectionEvent struct {
	Envelope
	Status string `json:"status"`
	TestID string `json:"test_id"`
}

// NewConnectionEvent creates the confirmation sent right after a subscriber
// is registered.
func NewConnectionEvent(testID string, now time.Time) *ConnectionEvent {
	return &ConnectionEvent{
		Envelope: Envelope{Type: EventConnection, Timestamp: FormatTimestamp(now)},
		Status:   StatusConnected,
		TestID:   testID,
	}
}

// TestStatusEvent reports progress of a test run.
type TestStatusEvent struct {
	Envelope
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewTestStatusEvent creates an unstamped test status payload.
func NewTestStatusEvent(status, message string) *TestStatusEvent {
	return &TestStatusEvent{
		Envelope: Envelope{Type: EventTestStatus},
		Status:   status,
		Message:  message,
	}
}

// BrowserObservationEvent summarizes one browser step for subscribers.
type BrowserObservationEvent struct {
	Envelope
	URL string `json:"url"`
	// Screenshot is a base64-encoded PNG, or null when none was captured.
	Screenshot   *string `json:"screenshot"`
	Action       string  `json:"action"`
	Error        bool    `json:"error"`
	ErrorMessage string  `json:"error_message"`
}

// NewBrowserObservationEvent creates an unstamped observation payload. An
// empty screenshot is sent as null.
func NewBrowserObservationEvent(url, screenshot, action string, isError bool, errorMessage string) *BrowserObservationEvent {
	ev := &BrowserObservationEvent{
		Envelope:     Envelope{Type: EventBrowserObservation},
		URL:          url,
		Action:       action,
		Error:        isError,
		ErrorMessage: errorMessage,
	}
	if screenshot != "" {
		ev.Screenshot = &screenshot
	}
	return ev
}

// Raw is a free-form payload for event types not modelled above. Its "type"
// and "timestamp" keys follow the same rules as the typed payloads.
type Raw map[string]any

func (r Raw) EventType() string {
	s, _ := r["type"].(string)
	return s
}

func (r Raw) StampIfUnset(now time.Time) {
	if s, ok := r["timestamp"].(string); ok && s != "" {
		return
	}
	r["timestamp"] = FormatTimestamp(now)
}

// HealthResponse is served by the relay health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	// ActiveTests mirrors ActiveSessions for older dashboards.
	ActiveTests int `json:"active_tests"`
	Subscribers int `json:"subscribers"`
}
