package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultStepTimeout bounds a single engine step.
const DefaultStepTimeout = 30 * time.Second

type envState int

const (
	stateIdle envState = iota
	stateRunning
	stateClosed
)

// Env owns one browser engine and serializes every operation on it.
type Env struct {
	mu          sync.Mutex
	engine      Engine
	state       envState
	stepTimeout time.Duration
	logger      *slog.Logger

	// inflight is the result channel of a step that timed out but whose
	// engine call has not returned yet. The next step waits for it.
	inflight chan stepOutcome
}

type stepOutcome struct {
	res *EngineResult
	err error
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStepTimeout sets the per-step deadline (default 30s).
func WithStepTimeout(d time.Duration) EnvOption {
	return func(e *Env) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithEnvLogger sets a custom logger.
func WithEnvLogger(l *slog.Logger) EnvOption {
	return func(e *Env) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnv wraps engine. The engine is launched lazily by Reset or Browse.
func NewEnv(engine Engine, opts ...EnvOption) *Env {
	e := &Env{
		engine:      engine,
		stepTimeout: DefaultStepTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reset (re)launches the engine. A running engine is shut down first.
func (e *Env) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launchLocked(ctx)
}

// ensureStarted launches the engine if it was never started. A closed env
// stays closed so that later steps report ErrUnavailable.
func (e *Env) ensureStarted(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return nil
	}
	return e.launchLocked(ctx)
}

func (e *Env) launchLocked(ctx context.Context) error {
	if e.engine == nil {
		return fmt.Errorf("%w: no engine configured", ErrInitialization)
	}
	if !e.waitInflightLocked(ctx) {
		return fmt.Errorf("%w: previous step still running: %w", ErrInitialization, ctx.Err())
	}
	if e.state == stateRunning {
		if err := e.engine.Shutdown(); err != nil {
			e.logger.Warn("browser shutdown before reset failed", "error", err)
		}
		e.state = stateIdle
	}
	if err := e.engine.Launch(ctx); err != nil {
		if errors.Is(err, ErrInitialization) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	e.state = stateRunning
	e.logger.Debug("browser environment started")
	return nil
}

// Started reports whether the engine is running.
func (e *Env) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateRunning
}

// Step runs one engine operation. It fails with ErrUnavailable when the env
// is not running and with ErrTimeout when the engine misses the deadline.
func (e *Env) Step(ctx context.Context, step Step) (*EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := string(step.Kind)
	switch e.state {
	case stateIdle:
		return nil, &StepError{Op: op, Err: fmt.Errorf("%w: environment not initialized", ErrUnavailable)}
	case stateClosed:
		return nil, &StepError{Op: op, Err: fmt.Errorf("%w: environment closed", ErrUnavailable)}
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	if !e.waitInflightLocked(stepCtx) {
		return nil, e.stepDeadlineError(ctx, op)
	}

	done := make(chan stepOutcome, 1)
	go func() {
		res, err := e.dispatch(stepCtx, step)
		done <- stepOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if stepCtx.Err() != nil && ctx.Err() == nil {
				return nil, e.stepDeadlineError(ctx, op)
			}
			return nil, &StepError{Op: op, Err: out.err}
		}
		if out.res == nil {
			out.res = &EngineResult{ActivePageIndex: -1}
		}
		return out.res, nil
	case <-stepCtx.Done():
		e.inflight = done
		return nil, e.stepDeadlineError(ctx, op)
	}
}

func (e *Env) dispatch(ctx context.Context, step Step) (*EngineResult, error) {
	switch step.Kind {
	case StepNavigate:
		return e.engine.Navigate(ctx, step.URL, step.Options)
	case StepInteract:
		return e.engine.Interact(ctx, step.Script, step.Options)
	default:
		return nil, fmt.Errorf("%w: step kind %q", ErrUnsupportedAction, step.Kind)
	}
}

func (e *Env) stepDeadlineError(parent context.Context, op string) error {
	if err := parent.Err(); err != nil {
		return &StepError{Op: op, Err: err}
	}
	return &StepError{Op: op, Err: fmt.Errorf("%w after %s", ErrTimeout, e.stepTimeout)}
}

// waitInflightLocked blocks until a previously abandoned step returns.
// Returns false if ctx ends first.
func (e *Env) waitInflightLocked(ctx context.Context) bool {
	if e.inflight == nil {
		return true
	}
	select {
	case <-e.inflight:
		e.inflight = nil
		return true
	case <-ctx.Done():
		return false
	}
}

// Close shuts the engine down. Closing twice, or closing an env that was
// never started, is a no-op. A step abandoned after a timeout is given one
// more step timeout to return before the engine is shut down under it.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	e.state = stateClosed
	if prev != stateRunning {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.stepTimeout)
	defer cancel()
	if !e.waitInflightLocked(ctx) {
		e.logger.Warn("shutting down browser with a step still running", "waited", e.stepTimeout)
	}
	if err := e.engine.Shutdown(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	e.logger.Debug("browser environment closed")
	return nil
}

// Logger returns the logger used by the env.
func (e *Env) Logger() *slog.Logger { return e.logger }
