package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodInteractor executes script operations against a RodEngine. It runs
// inside RodEngine.Interact, so the engine lock is already held.
type rodInteractor struct {
	ctx    context.Context
	engine *RodEngine
}

var _ Interactor = (*rodInteractor)(nil)

func (o *rodInteractor) page() (*rod.Page, error) {
	page, err := o.engine.activePage()
	if err != nil {
		return nil, err
	}
	return page.Context(o.ctx), nil
}

func (o *rodInteractor) element(ref string) (*rod.Page, *rod.Element, error) {
	page, err := o.page()
	if err != nil {
		return nil, nil, err
	}
	el, err := o.engine.resolveElement(page, ref)
	if err != nil {
		return nil, nil, err
	}
	return page, el, nil
}

func (o *rodInteractor) Goto(url string) error {
	page, err := o.page()
	if err != nil {
		return err
	}
	return navigatePage(page, url)
}

func (o *rodInteractor) GoBack() error {
	page, err := o.page()
	if err != nil {
		return err
	}
	if err := page.NavigateBack(); err != nil {
		return fmt.Errorf("go back: %w", err)
	}
	waitStable(page)
	return nil
}

func (o *rodInteractor) GoForward() error {
	page, err := o.page()
	if err != nil {
		return err
	}
	if err := page.NavigateForward(); err != nil {
		return fmt.Errorf("go forward: %w", err)
	}
	waitStable(page)
	return nil
}

func (o *rodInteractor) Click(ref, button string, count int) error {
	page, el, err := o.element(ref)
	if err != nil {
		return err
	}
	if err := el.Click(mouseButton(button), count); err != nil {
		return fmt.Errorf("click %s: %w", ref, err)
	}
	waitStable(page)
	return nil
}

func (o *rodInteractor) Hover(ref string) error {
	_, el, err := o.element(ref)
	if err != nil {
		return err
	}
	return el.Hover()
}

func (o *rodInteractor) Fill(ref, text string) error {
	_, el, err := o.element(ref)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill %s: %w", ref, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %s: %w", ref, err)
	}
	return nil
}

func (o *rodInteractor) Clear(ref string) error {
	return o.Fill(ref, "")
}

func (o *rodInteractor) Focus(ref string) error {
	_, el, err := o.element(ref)
	if err != nil {
		return err
	}
	return el.Focus()
}

func (o *rodInteractor) Press(ref, key string) error {
	page, el, err := o.element(ref)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus %s: %w", ref, err)
	}
	return pressKeys(page, key)
}

func (o *rodInteractor) KeyboardPress(key string) error {
	page, err := o.page()
	if err != nil {
		return err
	}
	return pressKeys(page, key)
}

func (o *rodInteractor) Scroll(dx, dy float64) error {
	page, err := o.page()
	if err != nil {
		return err
	}
	return page.Mouse.Scroll(dx, dy, 1)
}

func (o *rodInteractor) SelectOption(ref string, values []string) error {
	_, el, err := o.element(ref)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("select_option %s: no values", ref)
	}
	if err := el.Select(values, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select_option %s: %w", ref, err)
	}
	return nil
}

func (o *rodInteractor) NewTab(url string) error {
	_, err := o.engine.openPage(o.ctx, url)
	return err
}

func (o *rodInteractor) TabFocus(index int) error {
	e := o.engine
	if index < 0 || index >= len(e.pages) {
		return fmt.Errorf("tab index %d out of range (0-%d)", index, len(e.pages)-1)
	}
	if _, err := e.pages[index].Context(o.ctx).Activate(); err != nil {
		return fmt.Errorf("focus tab %d: %w", index, err)
	}
	e.active = index
	return nil
}

func (o *rodInteractor) TabClose() error {
	return o.engine.closeActive(o.ctx)
}

func (o *rodInteractor) SendMessageToUser(text string) error {
	o.engine.logger.Info("browser message to user", "text", text)
	return nil
}

func mouseButton(name string) proto.InputMouseButton {
	switch strings.ToLower(name) {
	case "right":
		return proto.InputMouseButtonRight
	case "middle":
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

// pressKeys presses a key or a "+"-joined chord such as "Control+a".
func pressKeys(page *rod.Page, combo string) error {
	parts := strings.Split(combo, "+")
	if len(parts) == 1 || combo == "+" {
		return page.Keyboard.Press(mapKey(combo))
	}

	keys := make([]input.Key, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, mapKey(p))
	}
	mods := keys[:len(keys)-1]
	for _, k := range mods {
		if err := page.Keyboard.Press(k); err != nil {
			return err
		}
	}
	err := page.Keyboard.Type(keys[len(keys)-1])
	for i := len(mods) - 1; i >= 0; i-- {
		if rerr := page.Keyboard.Release(mods[i]); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// mapKey converts a key name string to a Rod keyboard key.
func mapKey(key string) input.Key {
	switch key {
	case "Enter":
		return input.Enter
	case "Tab":
		return input.Tab
	case "Escape":
		return input.Escape
	case "Backspace":
		return input.Backspace
	case "Delete":
		return input.Delete
	case "ArrowUp":
		return input.ArrowUp
	case "ArrowDown":
		return input.ArrowDown
	case "ArrowLeft":
		return input.ArrowLeft
	case "ArrowRight":
		return input.ArrowRight
	case "Home":
		return input.Home
	case "End":
		return input.End
	case "PageUp":
		return input.PageUp
	case "PageDown":
		return input.PageDown
	case "Space", " ":
		return input.Space
	case "Control", "Ctrl":
		return input.ControlLeft
	case "Shift":
		return input.ShiftLeft
	case "Alt":
		return input.AltLeft
	case "Meta":
		return input.MetaLeft
	default:
		if len(key) == 1 {
			return input.Key(key[0])
		}
		return input.Enter
	}
}

// waitStable waits for page to become stable (no network/DOM activity).
func waitStable(page *rod.Page) {
	_ = page.WaitStable(stableInterval)
}
