package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEnv_StepBeforeStart(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	_, err := env.Step(context.Background(), Step{Kind: StepNavigate, URL: "https://example.com"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Op != "navigate" {
		t.Errorf("want StepError for navigate, got %#v", err)
	}
}

func TestEnv_LaunchFailure(t *testing.T) {
	env := NewEnv(&fakeEngine{launchErr: errors.New("chrome not found")})
	err := env.Reset(context.Background())
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("err = %v, want ErrInitialization", err)
	}
	if env.Started() {
		t.Error("env should not be started after a failed launch")
	}
}

func TestEnv_NilEngine(t *testing.T) {
	if err := NewEnv(nil).Reset(context.Background()); !errors.Is(err, ErrInitialization) {
		t.Fatalf("err = %v, want ErrInitialization", err)
	}
}

func TestEnv_ResetRelaunches(t *testing.T) {
	eng := &fakeEngine{}
	env := NewEnv(eng)
	ctx := context.Background()
	if err := env.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	launches, shutdowns := eng.counts()
	if launches != 2 || shutdowns != 1 {
		t.Errorf("launches=%d shutdowns=%d, want 2 and 1", launches, shutdowns)
	}
}

func TestEnv_CloseIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	env := NewEnv(eng)
	if err := env.Close(); err != nil {
		t.Fatalf("close before start: %v", err)
	}
	if _, shutdowns := eng.counts(); shutdowns != 0 {
		t.Errorf("closing a never-started env must not shut the engine down")
	}

	env = NewEnv(eng)
	if err := env.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := env.Close(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
	if _, shutdowns := eng.counts(); shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", shutdowns)
	}
	if env.Started() {
		t.Error("closed env reports started")
	}

	_, err := env.Step(context.Background(), Step{Kind: StepInteract, Script: "noop()"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("step after close: err = %v, want ErrUnavailable", err)
	}
}

func TestEnv_StepTimeout(t *testing.T) {
	eng := &fakeEngine{block: make(chan struct{})}
	env := NewEnv(eng, WithStepTimeout(20*time.Millisecond))
	ctx := context.Background()
	if err := env.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := env.Step(ctx, Step{Kind: StepNavigate, URL: "https://slow.example.com"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !IsTransient(err) {
		t.Error("timeout should be transient")
	}

	close(eng.block)
	res, err := env.Step(ctx, Step{Kind: StepNavigate, URL: "https://example.com"})
	if err != nil {
		t.Fatalf("step after timeout: %v", err)
	}
	if res.URL != "https://example.com" {
		t.Errorf("url = %q", res.URL)
	}
}

func TestEnv_AbandonedStepBlocksResetAndClose(t *testing.T) {
	eng := &fakeEngine{block: make(chan struct{})}
	env := NewEnv(eng, WithStepTimeout(50*time.Millisecond))
	if err := env.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Step(context.Background(), Step{Kind: StepNavigate, URL: "https://slow.example.com"}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := env.Reset(ctx); !errors.Is(err, ErrInitialization) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("reset with a step in flight: %v", err)
	}
	if launches, shutdowns := eng.counts(); launches != 1 || shutdowns != 0 {
		t.Errorf("launches=%d shutdowns=%d", launches, shutdowns)
	}

	time.AfterFunc(5*time.Millisecond, func() { close(eng.block) })
	if err := env.Close(); err != nil {
		t.Fatal(err)
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.shutdowns != 1 || eng.overlaps != 0 {
		t.Errorf("shutdowns=%d overlaps=%d", eng.shutdowns, eng.overlaps)
	}
}

func TestEnv_ParentCancel(t *testing.T) {
	eng := &fakeEngine{block: make(chan struct{})}
	defer close(eng.block)
	env := NewEnv(eng, WithStepTimeout(time.Minute))
	if err := env.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := env.Step(ctx, Step{Kind: StepNavigate, URL: "https://example.com"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("caller cancellation must not be reported as a timeout")
	}
}

func TestEnv_StepsAreSerialized(t *testing.T) {
	eng := &fakeEngine{}
	env := NewEnv(eng)
	ctx := context.Background()
	if err := env.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.Step(ctx, Step{Kind: StepInteract, Script: "scroll(0, 100)"}); err != nil {
				t.Errorf("step: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := eng.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent engine calls = %d, want 1", got)
	}
}

func TestEnv_UnknownStepKind(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	if err := env.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := env.Step(context.Background(), Step{Kind: "teleport"})
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("err = %v, want ErrUnsupportedAction", err)
	}
}
