package qarun

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/qabrowser/pkg/browser"
	"github.com/nextlevelbuilder/qabrowser/pkg/events"
	"github.com/nextlevelbuilder/qabrowser/pkg/protocol"
)

// Reporter publishes run progress. relay.Relay implements it.
type Reporter interface {
	BroadcastTestStatus(ctx context.Context, testID, status, message string) error
	BroadcastObservation(ctx context.Context, testID string, ev *protocol.BrowserObservationEvent) error
}

// Result summarizes a finished run.
type Result struct {
	TestID       string
	Actions      []events.Action
	Observations []*events.BrowserObservation
	// Failed counts steps whose observation reported an error.
	Failed int
}

// Passed reports whether every step succeeded.
func (r *Result) Passed() bool { return r.Failed == 0 }

// Runner executes plans against one browser environment.
type Runner struct {
	env           *browser.Env
	reporter      Reporter
	seq           *events.Sequencer
	logger        *slog.Logger
	thumbMaxSide  int
	screenshotDir string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithThumbnailMaxSide shrinks broadcast screenshots so neither side exceeds
// n pixels. 0 sends them unchanged.
func WithThumbnailMaxSide(n int) RunnerOption {
	return func(r *Runner) { r.thumbMaxSide = n }
}

// WithScreenshotDir persists screenshots for plans that do not name a
// directory themselves.
func WithScreenshotDir(dir string) RunnerOption {
	return func(r *Runner) { r.screenshotDir = dir }
}

// WithSequencer shares an id sequence with other producers.
func WithSequencer(seq *events.Sequencer) RunnerOption {
	return func(r *Runner) {
		if seq != nil {
			r.seq = seq
		}
	}
}

// NewRunner creates a runner.
func NewRunner(env *browser.Env, reporter Reporter, opts ...RunnerOption) *Runner {
	r := &Runner{
		env:      env,
		reporter: reporter,
		seq:      &events.Sequencer{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run browses every step of plan in order. Progress is reported as
// starting, then running and browser_observation per step, then completed.
// A fatal browse error or cancellation reports failed and is returned.
// Steps that end in an error observation are counted, not fatal.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	res := &Result{TestID: plan.TestID}
	log := r.logger.With("test_id", plan.TestID)

	var browseOpts []browser.BrowseOption
	if dir := plan.ScreenshotDir; dir != "" {
		browseOpts = append(browseOpts, browser.WithScreenshotDir(dir))
	} else if r.screenshotDir != "" {
		browseOpts = append(browseOpts, browser.WithScreenshotDir(r.screenshotDir))
	}

	r.status(ctx, plan.TestID, protocol.TestStarting, fmt.Sprintf("Starting %s", planLabel(plan)))
	log.Info("test run started", "steps", len(plan.Steps))

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return res, r.fail(plan.TestID, fmt.Errorf("cancelled before step %d: %w", i+1, err))
		}
		r.status(ctx, plan.TestID, protocol.TestRunning, step.Name)

		action, err := step.action(r.seq)
		if err != nil {
			return res, r.fail(plan.TestID, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err))
		}
		res.Actions = append(res.Actions, action)

		obs, err := browser.Browse(ctx, r.env, action, browseOpts...)
		if err != nil {
			return res, r.fail(plan.TestID, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err))
		}
		r.seq.Assign(&obs.Event)
		res.Observations = append(res.Observations, obs)
		if obs.Error {
			res.Failed++
			log.Warn("step failed", "step", step.Name, "error", obs.LastActionError)
		} else {
			log.Info("step passed", "step", step.Name, "url", obs.URL)
		}

		r.observation(ctx, plan.TestID, step.Name, obs)
	}

	msg := "All steps passed"
	if res.Failed > 0 {
		msg = fmt.Sprintf("Completed with %d failing steps", res.Failed)
	}
	r.status(ctx, plan.TestID, protocol.TestCompleted, msg)
	log.Info("test run completed", "failed", res.Failed)
	return res, nil
}

func (r *Runner) observation(ctx context.Context, testID, stepName string, obs *events.BrowserObservation) {
	screenshot := obs.Screenshot
	if r.thumbMaxSide > 0 && screenshot != "" {
		small, err := browser.ThumbnailBase64(screenshot, r.thumbMaxSide)
		if err != nil {
			r.logger.Warn("thumbnail failed, sending full screenshot", "test_id", testID, "error", err)
		} else {
			screenshot = small
		}
	}
	ev := protocol.NewBrowserObservationEvent(obs.URL, screenshot, stepName, obs.Error, obs.LastActionError)
	if err := r.reporter.BroadcastObservation(ctx, testID, ev); err != nil {
		r.logger.Error("broadcast observation failed", "test_id", testID, "error", err)
	}
}

func (r *Runner) status(ctx context.Context, testID, status, message string) {
	if err := r.reporter.BroadcastTestStatus(ctx, testID, status, message); err != nil {
		r.logger.Error("broadcast status failed", "test_id", testID, "status", status, "error", err)
	}
}

// fail reports a failed status and returns err. The status is sent on a
// fresh context so that it survives cancellation of the run.
func (r *Runner) fail(testID string, err error) error {
	r.status(context.Background(), testID, protocol.TestFailed, err.Error())
	r.logger.Error("test run failed", "test_id", testID, "error", err)
	return err
}

func planLabel(p *Plan) string {
	if p.Name != "" {
		return p.Name
	}
	return p.TestID
}
