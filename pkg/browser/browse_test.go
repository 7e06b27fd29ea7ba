package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/nextlevelbuilder/qabrowser/pkg/events"
)

func TestBrowse_Navigate(t *testing.T) {
	eng := &fakeEngine{}
	env := NewEnv(eng)
	defer env.Close()

	obs, err := Browse(context.Background(), env, events.NewNavigateAction("https://example.com"))
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if obs.Error || obs.LastActionError != "" {
		t.Fatalf("unexpected error observation: %+v", obs)
	}
	if obs.URL != "https://example.com" {
		t.Errorf("url = %q", obs.URL)
	}
	if obs.TriggeredBy != events.ActionBrowse {
		t.Errorf("trigger = %q", obs.TriggeredBy)
	}
	if !strings.Contains(obs.Content, "Example Domain") {
		t.Errorf("content = %q", obs.Content)
	}
	if obs.Screenshot != base64.StdEncoding.EncodeToString(fakePNG) {
		t.Error("screenshot should be base64 of the engine PNG")
	}
	if obs.ScreenshotPath != "" {
		t.Errorf("no dir given, path should stay empty: %q", obs.ScreenshotPath)
	}
	if obs.AXTree != nil || obs.DOM != nil {
		t.Error("AX tree and DOM are only attached on request")
	}
	if obs.ActivePageIndex != 0 || len(obs.OpenPagesURLs) != 1 {
		t.Errorf("pages = %v active = %d", obs.OpenPagesURLs, obs.ActivePageIndex)
	}
	if launches, _ := eng.counts(); launches != 1 {
		t.Errorf("env should be lazily launched once, launches = %d", launches)
	}
}

func TestBrowse_ReturnAXTree(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()

	a := events.NewNavigateAction("https://example.com")
	a.ReturnAXTree = true
	obs, err := Browse(context.Background(), env, &a)
	if err != nil {
		t.Fatal(err)
	}
	if obs.AXTree == nil || obs.DOM == nil {
		t.Errorf("expected AX tree and DOM, got %v / %v", obs.AXTree, obs.DOM)
	}
}

func TestBrowse_UnreachableURL(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()

	obs, err := Browse(context.Background(), env, events.NewNavigateAction("http://nowhere.invalid"))
	if err != nil {
		t.Fatalf("unreachable URL must be an observation, got error %v", err)
	}
	if !obs.Error || !strings.Contains(obs.LastActionError, "ERR_NAME_NOT_RESOLVED") {
		t.Errorf("want error observation, got %+v", obs)
	}
}

func TestBrowse_InteractErrors(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()
	ctx := context.Background()

	obs, err := Browse(ctx, env, events.NewInteractAction(`click("missing")`))
	if err != nil {
		t.Fatal(err)
	}
	if !obs.Error || obs.TriggeredBy != events.ActionBrowseInteractive {
		t.Errorf("script error should yield error observation: %+v", obs)
	}

	obs, err = Browse(ctx, env, events.NewInteractAction(`crash()`))
	if err != nil {
		t.Fatal(err)
	}
	if !obs.Error || !strings.Contains(obs.LastActionError, "target crashed") {
		t.Errorf("engine failure should yield error observation: %+v", obs)
	}

	obs, err = Browse(ctx, env, events.NewInteractAction(`click("e1")`))
	if err != nil {
		t.Fatal(err)
	}
	if obs.Error {
		t.Errorf("env should keep working after failures: %+v", obs)
	}
}

func TestBrowse_ClosedEnv(t *testing.T) {
	eng := &fakeEngine{}
	env := NewEnv(eng)
	if err := env.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	env.Close()

	obs, err := Browse(context.Background(), env, events.NewNavigateAction("https://example.com"))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !obs.Error {
		t.Error("closed env should produce an error observation")
	}
	if launches, _ := eng.counts(); launches != 1 {
		t.Errorf("closed env must not relaunch, launches = %d", launches)
	}
}

func TestBrowse_FatalErrors(t *testing.T) {
	env := NewEnv(&fakeEngine{launchErr: errors.New("no chrome")})
	_, err := Browse(context.Background(), env, events.NewNavigateAction("https://example.com"))
	if !errors.Is(err, ErrInitialization) || !IsFatal(err) {
		t.Errorf("err = %v, want fatal ErrInitialization", err)
	}

	_, err = Browse(context.Background(), nil, events.NewNavigateAction("https://example.com"))
	if !errors.Is(err, ErrInitialization) {
		t.Errorf("nil env: err = %v", err)
	}

	_, err = Browse(context.Background(), NewEnv(&fakeEngine{}), (*events.NavigateAction)(nil))
	if !errors.Is(err, ErrUnsupportedAction) || !IsFatal(err) {
		t.Errorf("nil action: err = %v, want ErrUnsupportedAction", err)
	}
}

func TestBrowse_ScreenshotPersistence(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Browse(ctx, env, events.NewNavigateAction("https://example.com"), WithScreenshotDir(dir))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Browse(ctx, env, events.NewNavigateAction("https://example.com"), WithScreenshotDir(dir))
	if err != nil {
		t.Fatal(err)
	}

	if first.ScreenshotPath == "" || second.ScreenshotPath == "" {
		t.Fatalf("paths not set: %q %q", first.ScreenshotPath, second.ScreenshotPath)
	}
	if first.ScreenshotPath == second.ScreenshotPath {
		t.Errorf("consecutive screenshots share a path: %s", first.ScreenshotPath)
	}
	for _, p := range []string{first.ScreenshotPath, second.ScreenshotPath} {
		if filepath.Dir(p) != filepath.Join(dir, ScreenshotSubdir) {
			t.Errorf("%s not under %s", p, ScreenshotSubdir)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != string(fakePNG) {
			t.Errorf("%s content mismatch", p)
		}
	}
}

type failingStore struct{}

func (failingStore) Save(string, []byte) (string, error) { return "", errors.New("disk full") }

func TestBrowse_ScreenshotFailureIsNotFatal(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()

	obs, err := Browse(context.Background(), env, events.NewNavigateAction("https://example.com"),
		WithScreenshotDir(t.TempDir()), WithScreenshotStore(failingStore{}))
	if err != nil {
		t.Fatal(err)
	}
	if obs.Error || obs.ScreenshotPath != "" {
		t.Errorf("persistence failure leaked into observation: %+v", obs)
	}
	if obs.Screenshot == "" {
		t.Error("inline screenshot should survive a persistence failure")
	}
}

func TestBrowse_ErrorFlagMatchesMessage(t *testing.T) {
	env := NewEnv(&fakeEngine{})
	defer env.Close()

	rapid.Check(t, func(t *rapid.T) {
		var action events.Action
		if rapid.Bool().Draw(t, "navigate") {
			host := rapid.SampledFrom([]string{"example.com", "nowhere.invalid", "qa.test"}).Draw(t, "host")
			action = events.NewNavigateAction("https://" + host + "/")
		} else {
			script := rapid.SampledFrom([]string{`click("e1")`, `click("missing")`, `crash()`, ""}).Draw(t, "script")
			action = events.NewInteractAction(script)
		}

		obs, err := Browse(context.Background(), env, action)
		if err != nil {
			t.Fatalf("Browse: %v", err)
		}
		if obs.Error != (obs.LastActionError != "") {
			t.Fatalf("error=%v but last_action_error=%q", obs.Error, obs.LastActionError)
		}
	})
}
