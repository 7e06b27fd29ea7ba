package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/qabrowser/pkg/events"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/qabrowser/pkg/browser")

type browseConfig struct {
	screenshotDir string
	store         ScreenshotStore
}

// BrowseOption configures a single Browse call.
type BrowseOption func(*browseConfig)

// WithScreenshotDir persists the screenshot under dir/.browser_screenshots
// and records its path on the observation.
func WithScreenshotDir(dir string) BrowseOption {
	return func(c *browseConfig) { c.screenshotDir = dir }
}

// WithScreenshotStore replaces the file store used for persistence.
func WithScreenshotStore(s ScreenshotStore) BrowseOption {
	return func(c *browseConfig) {
		if s != nil {
			c.store = s
		}
	}
}

// Browse performs action on env and returns what the browser looks like
// afterwards. The env is launched on first use.
//
// Only two conditions are returned as errors: ErrUnsupportedAction and
// ErrInitialization. Every step failure (timeout, unavailable browser,
// unreachable URL, script error) comes back as an observation with Error set,
// so a driver loop can inspect the result and continue.
func Browse(ctx context.Context, env *Env, action events.Action, opts ...BrowseOption) (*events.BrowserObservation, error) {
	cfg := browseConfig{store: defaultScreenshotStore}
	for _, o := range opts {
		o(&cfg)
	}

	step, err := stepFor(action)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("%w: nil environment", ErrInitialization)
	}

	ctx, span := tracer.Start(ctx, "browser.browse", trace.WithAttributes(
		attribute.String("browser.action", string(action.ActionType())),
		attribute.String("browser.security_risk", action.Risk().String()),
	))
	defer span.End()

	if err := env.ensureStarted(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialization failed")
		return nil, err
	}

	obs := events.NewBrowserObservation(action.ActionType())
	obs.LastAction = describeStep(step)

	start := time.Now()
	res, err := env.Step(ctx, step)
	recordStep(action.ActionType(), time.Since(start), err, res)
	if err != nil {
		env.logger.Warn("browser step failed", "action", action.ActionType(), "error", err, "transient", IsTransient(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "step failed")
		obs.SetError(err.Error())
		return obs, nil
	}

	applyResult(obs, res, step.Options)
	if obs.Error {
		span.SetStatus(codes.Error, obs.LastActionError)
	}
	span.SetAttributes(attribute.String("browser.url", obs.URL), attribute.Bool("browser.error", obs.Error))

	if cfg.screenshotDir != "" && len(res.Screenshot) > 0 {
		path, err := cfg.store.Save(cfg.screenshotDir, res.Screenshot)
		if err != nil {
			env.logger.Warn("screenshot not persisted", "dir", cfg.screenshotDir, "error", err)
			recordScreenshotSave(false)
		} else {
			obs.ScreenshotPath = path
			recordScreenshotSave(true)
		}
	}
	return obs, nil
}

func stepFor(action events.Action) (Step, error) {
	switch a := action.(type) {
	case events.NavigateAction:
		return navigateStep(a), nil
	case *events.NavigateAction:
		if a != nil {
			return navigateStep(*a), nil
		}
	case events.InteractAction:
		return interactStep(a), nil
	case *events.InteractAction:
		if a != nil {
			return interactStep(*a), nil
		}
	}
	return Step{}, fmt.Errorf("%w: %T", ErrUnsupportedAction, action)
}

func navigateStep(a events.NavigateAction) Step {
	return Step{
		Kind:    StepNavigate,
		URL:     a.URL,
		Options: StepOptions{IncludeAXTree: a.ReturnAXTree, IncludeDOM: a.ReturnAXTree},
	}
}

func interactStep(a events.InteractAction) Step {
	return Step{
		Kind:    StepInteract,
		Script:  a.Script,
		Options: StepOptions{IncludeAXTree: a.ReturnAXTree, IncludeDOM: a.ReturnAXTree},
	}
}

func describeStep(s Step) string {
	if s.Kind == StepNavigate {
		return fmt.Sprintf("goto(%q)", s.URL)
	}
	return s.Script
}

func applyResult(obs *events.BrowserObservation, res *EngineResult, opts StepOptions) {
	obs.URL = res.URL
	obs.Content = res.Content
	if len(res.Screenshot) > 0 {
		obs.Screenshot = base64.StdEncoding.EncodeToString(res.Screenshot)
	}
	if opts.IncludeAXTree {
		obs.AXTree = res.AXTree
	}
	if opts.IncludeDOM {
		obs.DOM = res.DOM
	}
	if res.OpenPagesURLs != nil {
		obs.OpenPagesURLs = append([]string(nil), res.OpenPagesURLs...)
	}
	obs.ActivePageIndex = res.ActivePageIndex
	obs.FocusedElementID = res.FocusedElementID
	if res.LastAction != "" {
		obs.LastAction = res.LastAction
	}
	if res.Error != "" {
		obs.SetError(res.Error)
	} else {
		obs.ClearError()
	}
}

// IsFatal reports whether err returned by Browse must stop a driver loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInitialization) || errors.Is(err, ErrUnsupportedAction)
}
