package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
)

// maxNoopWait caps noop(ms) so a script cannot park the engine.
const maxNoopWait = 10 * time.Second

// Interactor is the set of page operations available to interaction
// scripts. Element arguments are snapshot refs ("e5", "@e5", "ref=e5").
type Interactor interface {
	Goto(url string) error
	GoBack() error
	GoForward() error
	Click(ref, button string, count int) error
	Hover(ref string) error
	Fill(ref, text string) error
	Clear(ref string) error
	Focus(ref string) error
	Press(ref, key string) error
	KeyboardPress(key string) error
	Scroll(dx, dy float64) error
	SelectOption(ref string, values []string) error
	NewTab(url string) error
	TabFocus(index int) error
	TabClose() error
	SendMessageToUser(text string) error
}

// RunScript executes an interaction script such as
//
//	fill("e12", "alice@example.com")
//	click("e14")
//
// in a fresh JavaScript VM whose globals call into ops. The VM is interrupted
// when ctx ends. An empty script is a no-op.
func RunScript(ctx context.Context, script string, ops Interactor) error {
	vm := goja.New()
	bindScriptAPI(ctx, vm, ops)

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	_, err := vm.RunString(script)
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	return fmt.Errorf("script: %w", err)
}

// scriptArgs reads positional JS arguments leniently.
type scriptArgs []goja.Value

func (a scriptArgs) present(i int) bool {
	return i < len(a) && !goja.IsUndefined(a[i]) && !goja.IsNull(a[i])
}

func (a scriptArgs) str(i int) string {
	if !a.present(i) {
		return ""
	}
	return a[i].String()
}

func (a scriptArgs) num(i int, def float64) float64 {
	if !a.present(i) {
		return def
	}
	f := a[i].ToFloat()
	if math.IsNaN(f) {
		return def
	}
	return f
}

func (a scriptArgs) strs(i int) []string {
	if !a.present(i) {
		return nil
	}
	switch v := a[i].Export().(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{a[i].String()}
	}
}

func bindScriptAPI(ctx context.Context, vm *goja.Runtime, ops Interactor) {
	bind := func(name string, fn func(args scriptArgs) error) {
		vm.Set(name, func(call goja.FunctionCall) goja.Value {
			if err := fn(scriptArgs(call.Arguments)); err != nil {
				panic(vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
			}
			return goja.Undefined()
		})
	}

	bind("goto", func(a scriptArgs) error { return ops.Goto(a.str(0)) })
	bind("go_back", func(scriptArgs) error { return ops.GoBack() })
	bind("go_forward", func(scriptArgs) error { return ops.GoForward() })
	bind("click", func(a scriptArgs) error { return ops.Click(a.str(0), a.str(1), 1) })
	bind("dblclick", func(a scriptArgs) error { return ops.Click(a.str(0), a.str(1), 2) })
	bind("hover", func(a scriptArgs) error { return ops.Hover(a.str(0)) })
	bind("fill", func(a scriptArgs) error { return ops.Fill(a.str(0), a.str(1)) })
	bind("clear", func(a scriptArgs) error { return ops.Clear(a.str(0)) })
	bind("focus", func(a scriptArgs) error { return ops.Focus(a.str(0)) })
	bind("press", func(a scriptArgs) error { return ops.Press(a.str(0), a.str(1)) })
	bind("keyboard_press", func(a scriptArgs) error { return ops.KeyboardPress(a.str(0)) })
	bind("scroll", func(a scriptArgs) error { return ops.Scroll(a.num(0, 0), a.num(1, 0)) })
	bind("select_option", func(a scriptArgs) error { return ops.SelectOption(a.str(0), a.strs(1)) })
	bind("new_tab", func(a scriptArgs) error { return ops.NewTab(a.str(0)) })
	bind("tab_focus", func(a scriptArgs) error { return ops.TabFocus(int(a.num(0, 0))) })
	bind("tab_close", func(scriptArgs) error { return ops.TabClose() })
	bind("send_msg_to_user", func(a scriptArgs) error { return ops.SendMessageToUser(a.str(0)) })
	bind("noop", func(a scriptArgs) error {
		wait := time.Duration(a.num(0, 1000)) * time.Millisecond
		if wait > maxNoopWait {
			wait = maxNoopWait
		}
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
