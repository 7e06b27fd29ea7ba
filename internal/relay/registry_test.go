package relay

import "testing"

func TestRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	ch := newFake("a")
	reg.Register("T1", ch)
	reg.Register("T1", ch)
	if got := len(reg.ChannelsFor("T1")); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
}

func TestRegistry_UnregisterDropsEmptySessions(t *testing.T) {
	reg := NewRegistry()
	a, b := newFake("a"), newFake("b")
	reg.Register("T1", a)
	reg.Register("T1", b)
	reg.Register("T2", a)

	if !reg.Unregister("T1", a) {
		t.Fatal("unregister should report removal")
	}
	if reg.Unregister("T1", a) {
		t.Error("second unregister should report false")
	}
	if reg.Unregister("missing", a) {
		t.Error("unknown session should report false")
	}
	if reg.SessionCount() != 2 || reg.SubscriberCount() != 2 {
		t.Errorf("sessions=%d subscribers=%d", reg.SessionCount(), reg.SubscriberCount())
	}

	reg.Unregister("T1", b)
	if reg.SessionCount() != 1 {
		t.Errorf("empty session should be removed, sessions=%v", reg.Sessions())
	}
	if got := reg.ChannelsFor("T1"); got == nil || len(got) != 0 {
		t.Errorf("unknown session should give an empty slice, got %v", got)
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	reg := NewRegistry()
	a := newFake("a")
	reg.Register("T1", a)
	snap := reg.ChannelsFor("T1")
	reg.Unregister("T1", a)
	reg.Register("T1", newFake("b"))
	if len(snap) != 1 || snap[0].ID() != "a" {
		t.Errorf("snapshot changed: %v", snap)
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()
	a, b := newFake("a"), newFake("b")
	reg.Register("T1", a)
	reg.Register("T2", b)
	reg.Clear()
	if reg.SessionCount() != 0 || a.closed != 1 || b.closed != 1 {
		t.Errorf("clear: sessions=%d a=%d b=%d", reg.SessionCount(), a.closed, b.closed)
	}
	if s := reg.Sessions(); len(s) != 0 {
		t.Errorf("sessions = %v", s)
	}
}

func TestRateLimiter(t *testing.T) {
	off := NewRateLimiter(0, 1)
	defer off.Stop()
	for i := 0; i < 100; i++ {
		if !off.Allow("1.2.3.4") {
			t.Fatal("disabled limiter must allow everything")
		}
	}

	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third immediate request should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("keys are limited independently")
	}
}
