package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

var fakePNG = []byte("\x89PNG\r\n\x1a\nfake")

// fakeEngine is an in-memory Engine. Hosts under .invalid are unreachable.
type fakeEngine struct {
	mu        sync.Mutex
	launchErr error
	launches  int
	shutdowns int
	url       string
	// overlaps counts Launch or Shutdown calls made while a step was running.
	overlaps int

	// block, when set, parks every step until it is closed, ignoring ctx.
	block chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeEngine) Launch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active.Load() > 0 {
		f.overlaps++
	}
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launches++
	f.url = blankPageURL
	return nil
}

func (f *fakeEngine) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active.Load() > 0 {
		f.overlaps++
	}
	f.shutdowns++
	return nil
}

func (f *fakeEngine) enter() func() {
	n := f.active.Add(1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeEngine) Navigate(ctx context.Context, url string, opts StepOptions) (*EngineResult, error) {
	defer f.enter()()
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	res := &EngineResult{LastAction: `goto("` + url + `")`}
	if strings.Contains(url, ".invalid") {
		res.Error = "net::ERR_NAME_NOT_RESOLVED"
	} else {
		f.url = url
	}
	f.observe(res, opts)
	return res, nil
}

func (f *fakeEngine) Interact(ctx context.Context, script string, opts StepOptions) (*EngineResult, error) {
	defer f.enter()()
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	res := &EngineResult{LastAction: script}
	switch {
	case strings.Contains(script, "crash"):
		return nil, errors.New("target crashed")
	case strings.Contains(script, "missing"):
		res.Error = `click: unknown element ref "missing"`
	}
	f.observe(res, opts)
	return res, nil
}

func (f *fakeEngine) observe(res *EngineResult, opts StepOptions) {
	res.URL = f.url
	res.Content = "- heading \"Example Domain\" [ref=e1]"
	res.Screenshot = fakePNG
	res.OpenPagesURLs = []string{f.url}
	res.ActivePageIndex = 0
	if opts.IncludeAXTree {
		res.AXTree = map[string]any{"snapshot": res.Content}
	}
	if opts.IncludeDOM {
		res.DOM = map[string]any{"nodeName": "#document"}
	}
}

func (f *fakeEngine) counts() (launches, shutdowns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches, f.shutdowns
}
