package qarun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/qabrowser/internal/relay"
	"github.com/nextlevelbuilder/qabrowser/pkg/browser"
	"github.com/nextlevelbuilder/qabrowser/pkg/events"
	"github.com/nextlevelbuilder/qabrowser/pkg/protocol"
)

// stubEngine serves a 200x100 screenshot; URLs containing "broken" fail.
type stubEngine struct {
	launchErr error
	png       []byte
}

func newStubEngine(t *testing.T) *stubEngine {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(200, 100, color.White)
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return &stubEngine{png: buf.Bytes()}
}

func (s *stubEngine) Launch(context.Context) error { return s.launchErr }
func (s *stubEngine) Shutdown() error              { return nil }

func (s *stubEngine) Navigate(_ context.Context, url string, _ browser.StepOptions) (*browser.EngineResult, error) {
	res := &browser.EngineResult{URL: url, Screenshot: s.png, OpenPagesURLs: []string{url}}
	if strings.Contains(url, "broken") {
		res.Error = "net::ERR_CONNECTION_REFUSED"
	}
	return res, nil
}

func (s *stubEngine) Interact(_ context.Context, script string, _ browser.StepOptions) (*browser.EngineResult, error) {
	return &browser.EngineResult{URL: "https://example.com/login", LastAction: script, Screenshot: s.png}, nil
}

type recordedEvent struct {
	testID string
	status string
	msg    string
	obs    *protocol.BrowserObservationEvent
}

type recordingReporter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingReporter) BroadcastTestStatus(_ context.Context, testID, status, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{testID: testID, status: status, msg: message})
	return nil
}

func (r *recordingReporter) BroadcastObservation(_ context.Context, testID string, ev *protocol.BrowserObservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{testID: testID, obs: ev})
	return nil
}

func (r *recordingReporter) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if e.obs != nil {
			out = append(out, "observation:"+e.obs.Action)
			continue
		}
		out = append(out, e.status+":"+e.msg)
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const loginPlan = `
name: Login flow
steps:
  - name: Navigate to login
    navigate: https://example.com/login
    risk: low
  - name: Submit credentials
    interact: |
      fill("e2", "alice")
      click("e3")
    thought: submit the form
`

func TestRunner_EventSequence(t *testing.T) {
	plan, err := ParsePlan([]byte(loginPlan))
	if err != nil {
		t.Fatal(err)
	}
	env := browser.NewEnv(newStubEngine(t), browser.WithEnvLogger(quiet()))
	defer env.Close()
	rep := &recordingReporter{}

	res, err := NewRunner(env, rep, WithLogger(quiet()), WithThumbnailMaxSide(50)).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Passed() || len(res.Observations) != 2 {
		t.Errorf("result = %+v", res)
	}

	want := []string{
		"starting:Starting Login flow",
		"running:Navigate to login",
		"observation:Navigate to login",
		"running:Submit credentials",
		"observation:Submit credentials",
		"completed:All steps passed",
	}
	got := rep.sequence()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("sequence:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	for _, e := range rep.events {
		if e.testID != "login-flow" {
			t.Errorf("event for %q, want login-flow", e.testID)
		}
	}

	first := rep.events[2].obs
	if first.Screenshot == nil {
		t.Fatal("screenshot missing")
	}
	img, err := browser.PNGBase64ToImage(*first.Screenshot)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 25 {
		t.Errorf("thumbnail bounds = %v", img.Bounds())
	}
}

func TestRunner_AssignsIDs(t *testing.T) {
	plan, err := ParsePlan([]byte(loginPlan))
	if err != nil {
		t.Fatal(err)
	}
	env := browser.NewEnv(newStubEngine(t), browser.WithEnvLogger(quiet()))
	defer env.Close()

	res, err := NewRunner(env, &recordingReporter{}, WithLogger(quiet())).Run(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[int64]bool{}
	for i, a := range res.Actions {
		id := a.Meta().ID
		obsID := res.Observations[i].ID
		if id == events.InvalidID || obsID == events.InvalidID {
			t.Fatalf("step %d missing ids: %d %d", i, id, obsID)
		}
		if seen[id] || seen[obsID] || obsID <= id {
			t.Errorf("ids must be unique and increasing: action=%d obs=%d", id, obsID)
		}
		seen[id], seen[obsID] = true, true
	}
}

func TestRunner_FailingStepIsCounted(t *testing.T) {
	plan := &Plan{TestID: "T1", Steps: []Step{
		{Name: "broken", Navigate: "https://broken.example.com"},
		{Name: "ok", Navigate: "https://example.com"},
	}}
	env := browser.NewEnv(newStubEngine(t), browser.WithEnvLogger(quiet()))
	defer env.Close()
	rep := &recordingReporter{}

	res, err := NewRunner(env, rep, WithLogger(quiet())).Run(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d", res.Failed)
	}
	obs := rep.events[2].obs
	if !obs.Error || !strings.Contains(obs.ErrorMessage, "CONNECTION_REFUSED") {
		t.Errorf("observation = %+v", obs)
	}
	last := rep.events[len(rep.events)-1]
	if last.status != protocol.TestCompleted || last.msg != "Completed with 1 failing steps" {
		t.Errorf("last = %+v", last)
	}
}

func TestRunner_InitFailureReportsFailed(t *testing.T) {
	plan := &Plan{TestID: "T1", Steps: []Step{{Name: "open", Navigate: "https://example.com"}}}
	eng := newStubEngine(t)
	eng.launchErr = errors.New("chrome missing")
	rep := &recordingReporter{}

	_, err := NewRunner(browser.NewEnv(eng, browser.WithEnvLogger(quiet())), rep, WithLogger(quiet())).Run(context.Background(), plan)
	if !errors.Is(err, browser.ErrInitialization) {
		t.Fatalf("err = %v", err)
	}
	last := rep.events[len(rep.events)-1]
	if last.status != protocol.TestFailed || !strings.Contains(last.msg, "chrome missing") {
		t.Errorf("last = %+v", last)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	plan := &Plan{TestID: "T1", Steps: []Step{{Name: "open", Navigate: "https://example.com"}}}
	env := browser.NewEnv(newStubEngine(t), browser.WithEnvLogger(quiet()))
	defer env.Close()
	rep := &recordingReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(env, rep, WithLogger(quiet())).Run(ctx, plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if got := rep.sequence(); got[len(got)-1] != "failed:cancelled before step 1: context canceled" {
		t.Errorf("sequence = %v", got)
	}
}

// observerChannel is a relay subscriber that records event types and
// statuses. Sends honour ctx like a websocket write deadline would.
type observerChannel struct {
	mu     sync.Mutex
	frames []string
	closed bool
}

func (o *observerChannel) ID() string { return "observer" }

func (o *observerChannel) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var m struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, m.Type+":"+m.Status)
	return nil
}

func (o *observerChannel) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func TestRunner_CancelledRunStillReachesObservers(t *testing.T) {
	plan := &Plan{TestID: "T1", Steps: []Step{{Name: "open", Navigate: "https://example.com"}}}
	env := browser.NewEnv(newStubEngine(t), browser.WithEnvLogger(quiet()))
	defer env.Close()

	rl := relay.New(relay.NewRegistry(), relay.WithLogger(quiet()))
	obs := &observerChannel{}
	if err := rl.Subscribe(context.Background(), "T1", obs); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(env, rl, WithLogger(quiet())).Run(ctx, plan); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := "connection:connected,test_status:starting,test_status:failed"
	if got := strings.Join(obs.frames, ","); got != want || obs.closed {
		t.Errorf("frames = %s (closed=%t), want %s", got, obs.closed, want)
	}
	if n := rl.Registry().SubscriberCount(); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}
