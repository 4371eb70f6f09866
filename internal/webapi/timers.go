package webapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/cryguy/webbridge/internal/core"
)

// timersJS keeps page callbacks keyed by the loop's timer IDs. The loop owns
// the schedule; the page only maps an ID back to its callback.
const timersJS = `
(function() {
	var pending = {};
	function schedule(repeat, fn, ms, extra) {
		if (typeof fn !== 'function') return 0;
		ms = ms | 0;
		var id = __pageTimerAdd(ms < 0 ? 0 : ms, repeat);
		pending[id] = { fn: fn, args: extra, repeat: repeat };
		return id;
	}
	function cancel(id) {
		if (typeof id !== 'number' || !(id in pending)) return;
		delete pending[id];
		__pageTimerCancel(id);
	}
	globalThis.setTimeout = function(fn, ms) {
		return schedule(false, fn, ms, Array.prototype.slice.call(arguments, 2));
	};
	globalThis.setInterval = function(fn, ms) {
		return schedule(true, fn, ms, Array.prototype.slice.call(arguments, 2));
	};
	globalThis.clearTimeout = cancel;
	globalThis.clearInterval = cancel;
	Object.defineProperty(globalThis, '__pageTimerFire', {
		value: function(id) {
			var t = pending[id];
			if (!t) return;
			if (!t.repeat) delete pending[id];
			try {
				t.fn.apply(globalThis, t.args);
			} catch (err) {
				reportError(err);
			}
		},
	});
})();
`

// SetupTimers installs setTimeout and setInterval backed by host.Loop.
// Callbacks fire on the loop goroutine, each followed by a microtask
// checkpoint.
func SetupTimers(rt core.JSRuntime, host *Host) error {
	loop := host.Loop
	if loop == nil {
		return errors.New("webapi: timers need an event loop")
	}

	add := func(ms int, repeat bool) int {
		return loop.RegisterTimer(time.Duration(ms)*time.Millisecond, repeat)
	}
	if err := rt.RegisterFunc("__pageTimerAdd", add); err != nil {
		return fmt.Errorf("registering __pageTimerAdd: %w", err)
	}
	if err := rt.RegisterFunc("__pageTimerCancel", loop.ClearTimer); err != nil {
		return fmt.Errorf("registering __pageTimerCancel: %w", err)
	}
	if err := rt.Eval(timersJS); err != nil {
		return err
	}

	loop.SetTimerHandler(func(id int) {
		_ = rt.Eval(fmt.Sprintf("__pageTimerFire(%d)", id))
		rt.RunMicrotasks()
	})
	return nil
}
