package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTestStatusEvent_StampIfUnset(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ev := NewTestStatusEvent(TestRunning, "Visiting homepage...")
	ev.StampIfUnset(now)
	if ev.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %q", ev.Timestamp)
	}

	ev.StampIfUnset(now.Add(time.Hour))
	if ev.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("existing timestamp was overwritten: %q", ev.Timestamp)
	}
}

func TestBrowserObservationEvent_Wire(t *testing.T) {
	ev := NewBrowserObservationEvent("https://example.com", "", "Navigate to homepage", false, "")
	ev.StampIfUnset(time.Now())

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"type", "url", "screenshot", "action", "error", "error_message", "timestamp"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if got["type"] != EventBrowserObservation {
		t.Errorf("type = %v", got["type"])
	}
	if got["screenshot"] != nil {
		t.Errorf("empty screenshot should be null, got %v", got["screenshot"])
	}
}

func TestConnectionEvent_Wire(t *testing.T) {
	data, err := json.Marshal(NewConnectionEvent("t1", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "connection" || got["status"] != "connected" || got["test_id"] != "t1" {
		t.Errorf("unexpected connection payload: %s", data)
	}
	if ts, _ := got["timestamp"].(string); ts == "" {
		t.Errorf("timestamp missing: %s", data)
	}
}

func TestRaw_StampIfUnset(t *testing.T) {
	r := Raw{"type": "custom"}
	r.StampIfUnset(time.Now())
	if r["timestamp"] == "" || r["timestamp"] == nil {
		t.Errorf("raw payload not stamped: %v", r)
	}
	if r.EventType() != "custom" {
		t.Errorf("type = %q", r.EventType())
	}

	kept := Raw{"type": "custom", "timestamp": "yesterday"}
	kept.StampIfUnset(time.Now())
	if kept["timestamp"] != "yesterday" {
		t.Errorf("caller timestamp overwritten: %v", kept["timestamp"])
	}
}
