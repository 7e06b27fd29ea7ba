package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	blankPageURL   = "about:blank"
	stableInterval = 300 * time.Millisecond
)

// RodEngine drives a local Chrome over CDP. Pages are kept in open order so
// that observations can report a stable active index.
type RodEngine struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	pages    []*rod.Page
	active   int
	refs     *RefStore

	headless  bool
	binPath   string
	noSandbox bool
	snapOpts  SnapshotOptions
	logger    *slog.Logger
}

// RodOption configures a RodEngine.
type RodOption func(*RodEngine)

// WithHeadless sets headless mode (default true).
func WithHeadless(h bool) RodOption {
	return func(r *RodEngine) { r.headless = h }
}

// WithBinPath uses a specific Chrome binary instead of the auto-detected one.
func WithBinPath(path string) RodOption {
	return func(r *RodEngine) { r.binPath = path }
}

// WithNoSandbox disables the Chrome sandbox, needed when running as root in
// containers.
func WithNoSandbox(v bool) RodOption {
	return func(r *RodEngine) { r.noSandbox = v }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RodOption {
	return func(r *RodEngine) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSnapshotOptions overrides how page content is rendered.
func WithSnapshotOptions(o SnapshotOptions) RodOption {
	return func(r *RodEngine) { r.snapOpts = o }
}

// NewRodEngine creates an engine. Chrome is started by Launch.
func NewRodEngine(opts ...RodOption) *RodEngine {
	r := &RodEngine{
		refs:     NewRefStore(),
		headless: true,
		snapOpts: DefaultSnapshotOptions(),
		logger:   slog.Default(),
		active:   -1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Launch starts Chrome and opens one blank page.
func (r *RodEngine) Launch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return fmt.Errorf("browser already running")
	}

	// The launcher is not bound to ctx: a cancelled request must not kill
	// the browser it started.
	l := launcher.New().
		Headless(r.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")
	if r.binPath != "" {
		l = l.Bin(r.binPath)
	}
	if r.noSandbox {
		l = l.NoSandbox(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: launch Chrome: %v", ErrInitialization, err)
	}
	r.logger.Info("Chrome launched", "cdp", controlURL, "headless", r.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("%w: connect to Chrome: %v", ErrInitialization, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: blankPageURL})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return fmt.Errorf("%w: open initial page: %v", ErrInitialization, err)
	}

	r.launcher = l
	r.browser = b
	r.pages = []*rod.Page{page}
	r.active = 0
	return nil
}

// Shutdown closes Chrome and removes its temporary profile.
func (r *RodEngine) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Cleanup()
	}
	for _, p := range r.pages {
		r.refs.Forget(string(p.TargetID))
	}
	r.browser = nil
	r.launcher = nil
	r.pages = nil
	r.active = -1
	return err
}

// Navigate loads url in the active page and observes the result.
func (r *RodEngine) Navigate(ctx context.Context, url string, opts StepOptions) (*EngineResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	page, err := r.activePage()
	if err != nil {
		return nil, err
	}

	res := &EngineResult{LastAction: fmt.Sprintf("goto(%q)", url)}
	if err := navigatePage(page.Context(ctx), url); err != nil {
		res.Error = err.Error()
	}
	if err := r.observe(ctx, res, opts); err != nil {
		return nil, err
	}
	return res, nil
}

// Interact runs an interaction script against the current pages and
// observes the result. Script failures are reported in the result.
func (r *RodEngine) Interact(ctx context.Context, script string, opts StepOptions) (*EngineResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil, fmt.Errorf("%w: browser not running", ErrUnavailable)
	}

	res := &EngineResult{LastAction: script}
	ops := &rodInteractor{ctx: ctx, engine: r}
	if err := RunScript(ctx, script, ops); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Error = err.Error()
	}
	if err := r.observe(ctx, res, opts); err != nil {
		return nil, err
	}
	return res, nil
}

func navigatePage(page *rod.Page, url string) error {
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitStable(stableInterval); err != nil {
		return fmt.Errorf("wait stable after navigate: %w", err)
	}
	return nil
}

// observe fills res with the state of all pages. Must be called with r.mu held.
func (r *RodEngine) observe(ctx context.Context, res *EngineResult, opts StepOptions) error {
	page, err := r.activePage()
	if err != nil {
		return err
	}
	page = page.Context(ctx)

	res.ActivePageIndex = r.active
	res.OpenPagesURLs = make([]string, 0, len(r.pages))
	for _, p := range r.pages {
		u := ""
		if info, err := p.Context(ctx).Info(); err == nil && info != nil {
			u = info.URL
		}
		res.OpenPagesURLs = append(res.OpenPagesURLs, u)
	}
	res.URL = res.OpenPagesURLs[r.active]

	shot, err := page.Screenshot(false, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("screenshot failed", "url", res.URL, "error", err)
	}
	res.Screenshot = shot

	tree, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("accessibility tree unavailable", "url", res.URL, "error", err)
		tree = &proto.AccessibilityGetFullAXTreeResult{}
	}
	snap := FormatSnapshot(tree.Nodes, r.snapOpts)
	r.refs.Store(string(page.TargetID), snap.Refs)
	res.Content = snap.Snapshot
	res.FocusedElementID = snap.Focused
	if opts.IncludeAXTree {
		res.AXTree = snap.AXTreeObject()
	}

	if opts.IncludeDOM {
		dom, err := documentObject(page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("DOM snapshot failed", "url", res.URL, "error", err)
		}
		res.DOM = dom
	}
	return nil
}

// documentObject returns the full DOM tree as a generic object.
func documentObject(page *rod.Page) (map[string]any, error) {
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	raw, err := json.Marshal(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// activePage returns the focused page. Must be called with r.mu held.
func (r *RodEngine) activePage() (*rod.Page, error) {
	if r.browser == nil {
		return nil, fmt.Errorf("%w: browser not running", ErrUnavailable)
	}
	if r.active < 0 || r.active >= len(r.pages) {
		return nil, fmt.Errorf("%w: no page open", ErrUnavailable)
	}
	return r.pages[r.active], nil
}

// openPage appends a new page and makes it active. Must be called with
// r.mu held.
func (r *RodEngine) openPage(ctx context.Context, url string) (*rod.Page, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: blankPageURL})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	r.pages = append(r.pages, page)
	r.active = len(r.pages) - 1
	if url == "" || url == blankPageURL {
		return page, nil
	}
	return page, navigatePage(page.Context(ctx), url)
}

// closeActive closes the active page, keeping at least one page open.
// Must be called with r.mu held.
func (r *RodEngine) closeActive(ctx context.Context) error {
	page, err := r.activePage()
	if err != nil {
		return err
	}
	r.refs.Forget(string(page.TargetID))
	r.pages = append(r.pages[:r.active], r.pages[r.active+1:]...)
	closeErr := page.Close()

	if len(r.pages) == 0 {
		r.active = -1
		if _, err := r.openPage(ctx, blankPageURL); err != nil {
			return err
		}
		return closeErr
	}
	if r.active >= len(r.pages) {
		r.active = len(r.pages) - 1
	}
	_, err = r.pages[r.active].Activate()
	if closeErr != nil {
		return fmt.Errorf("close tab: %w", closeErr)
	}
	return err
}

// resolveElement converts a snapshot ref to a Rod element via its
// backendNodeID.
func (r *RodEngine) resolveElement(page *rod.Page, ref string) (*rod.Element, error) {
	ref = NormalizeRef(ref)
	roleRef, ok := r.refs.Resolve(string(page.TargetID), ref)
	if !ok {
		return nil, fmt.Errorf("unknown element ref %q", ref)
	}
	if roleRef.BackendNodeID == 0 {
		return nil, fmt.Errorf("no backendNodeID for ref %q", ref)
	}

	// DOM must be enabled for node resolution.
	_ = proto.DOMEnable{}.Call(page)

	resolved, err := proto.DOMResolveNode{BackendNodeID: proto.DOMBackendNodeID(roleRef.BackendNodeID)}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("resolve DOM node for %q (backendNodeID=%d): %w", ref, roleRef.BackendNodeID, err)
	}
	el, err := page.ElementFromObject(resolved.Object)
	if err != nil {
		return nil, fmt.Errorf("get element from object for %q: %w", ref, err)
	}
	return el, nil
}
