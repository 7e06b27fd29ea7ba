package browser

import "context"

// Engine is the port implemented by browser backends. Implementations may
// assume calls are serialized; Env guarantees it.
type Engine interface {
	// Launch starts the browser with one blank page.
	Launch(ctx context.Context) error
	Navigate(ctx context.Context, url string, opts StepOptions) (*EngineResult, error)
	Interact(ctx context.Context, script string, opts StepOptions) (*EngineResult, error)
	// Shutdown stops the browser. It is only called after a successful Launch,
	// and only concurrently with a step that has outlived two step timeouts.
	Shutdown() error
}
