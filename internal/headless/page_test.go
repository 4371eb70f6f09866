package headless

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/webbridge/internal/assets"
	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/config"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
	"github.com/cryguy/webbridge/internal/quickjs"
	"github.com/cryguy/webbridge/internal/registry"
	"github.com/cryguy/webbridge/internal/router"
	"github.com/cryguy/webbridge/internal/script"
	"github.com/cryguy/webbridge/internal/surface"
)

const waitFor = 2 * time.Second

type harness struct {
	loop   *eventloop.Loop
	page   *Page
	router *router.Router
	window *surface.Window
}

func newHarness(t *testing.T, files fstest.MapFS) *harness {
	t.Helper()
	loop := eventloop.New()
	go func() { _ = loop.Run(context.Background()) }()

	h := &harness{loop: loop}
	h.router = router.New(registry.New(), loop)

	page, err := New(loop, Options{
		Runtime:   quickjs.Factory(),
		Assets:    assets.New(files),
		OnMessage: func(m string) { h.router.OnMessage(m) },
	})
	require.NoError(t, err)
	h.page = page

	bridgeID := bridge.Register(bridge.New(page))
	cfg := config.FromMap(map[string]string{"ssc.argv": "--test"})
	windowID, err := surface.Alloc(bridgeID, h.router, page, cfg, config.MapEnv{}, nil)
	require.NoError(t, err)
	h.window, err = surface.FromHandle(windowID)
	require.NoError(t, err)
	page.SetPreload(h.window.PreloadSource())

	t.Cleanup(func() {
		_ = surface.Dealloc(windowID)
		_ = bridge.Unregister(bridgeID)
		_ = loop.Shutdown(context.Background())
	})
	return h
}

func (h *harness) eval(t *testing.T, js string) string {
	t.Helper()
	out, err := h.page.EvalString(context.Background(), js)
	require.NoError(t, err)
	return out
}

func (h *harness) eventually(t *testing.T, js, want string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		out, err := h.page.EvalString(context.Background(), js)
		return err == nil && out == want
	}, waitFor, 5*time.Millisecond, "%s never became %q", js, want)
}

func TestNavigateRunsScriptsInOrder(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<html><head><title>Order</title>
<script src="a.js"></script></head><body>
<script>window.steps.push('inline:' + document.readyState);</script>
<script>
document.addEventListener('DOMContentLoaded', () => window.steps.push('dom'));
window.addEventListener('load', () => window.steps.push('load:' + document.readyState));
</script>
</body></html>`)},
		"a.js": {Data: []byte(`window.steps = ['a'];`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	assert.Equal(t, "a,inline:loading,dom,load:complete", h.eval(t, `window.steps.join(',')`))
	assert.Equal(t, "Order", h.eval(t, `document.title`))
	assert.Equal(t, "webbridge://localhost/index.html", h.eval(t, `location.href`))
	assert.Equal(t, "true", h.eval(t, `String(window.__args.test)`))
}

func TestNavigateContinuesAfterScriptError(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>throw new Error('boom')</script>
<script>window.after = 'ran'</script>
<script src="missing.js"></script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "index.html"))

	assert.Equal(t, "ran", h.eval(t, `window.after`))
	logs := h.page.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "error", logs[0].Level)
	assert.Contains(t, logs[0].Message, "boom")
	assert.Equal(t, "error", logs[1].Level)
}

func TestNavigateMissingDocument(t *testing.T) {
	h := newHarness(t, fstest.MapFS{})
	assert.Error(t, h.page.Navigate(context.Background(), "/index.html"))
}

func TestModuleScriptsAreBundled(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html":      {Data: []byte(`<script type="module" src="/js/main.js"></script>`)},
		"js/main.js":      {Data: []byte(`import { greeting } from './lib/greet.js'; window.result = greeting('page');`)},
		"js/lib/greet.js": {Data: []byte(`export const greeting = name => 'hello ' + name;`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	assert.Equal(t, "hello page", h.eval(t, `window.result`))
}

func TestBindingRoundTrip(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>
window.addEventListener('load', () => {
  system.greet({ name: 'ada' }).then(v => { window.result = v; });
  system.fail(1).catch(err => { window.failure = err.message; });
});
</script>`)},
	})

	var mu sync.Mutex
	var requests []string
	require.NoError(t, h.router.BindFunc("greet", func(seq, req string) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		assert.True(t, h.loop.OnLoop())
		assert.NoError(t, h.router.Resolve(seq, "hi"))
	}))
	require.NoError(t, h.router.BindFunc("fail", func(seq, _ string) {
		assert.NoError(t, h.router.Reject(seq, "nope"))
	}))
	h.page.SetInit("bind:greet", script.BindingInit("greet"))
	h.page.SetInit("bind:fail", script.BindingInit("fail"))

	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	h.eventually(t, `String(window.result)`, "hi")
	h.eventually(t, `String(window.failure)`, "nope")
	mu.Lock()
	assert.Equal(t, []string{`{"name":"ada"}`}, requests)
	mu.Unlock()
	assert.Equal(t, "0", h.eval(t, `String(Object.keys(window._ipc).filter(k => /^\d+$/.test(k)).length)`))
}

func TestUnknownBindingLeavesCallPending(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>
window.settled = false;
window._ipc.send('nobody', 1).then(() => { window.settled = true; });
</script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	require.NoError(t, h.router.Eval(`window.checked = true`))

	h.eventually(t, `String(window.checked)`, "true")
	assert.Equal(t, "false", h.eval(t, `String(window.settled)`))
}

func TestEmit(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>
window.addEventListener('update', e => { window.detail = e.detail.count; });
</script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	require.NoError(t, h.router.EmitJSON("update", map[string]int{"count": 3}))
	h.eventually(t, `String(window.detail)`, "3")

	require.NoError(t, h.router.Emit("update", "%E0%A4%A"))
	assert.Eventually(t, func() bool {
		for _, l := range h.page.Logs() {
			if l.Level == "error" && l.Message != "" {
				return true
			}
		}
		return false
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "3", h.eval(t, `String(window.detail)`))
}

func TestResolveToRenderProcess(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>
window._ipc.send('pending', null).then(v => { window.value = v.ok; });
</script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	require.NoError(t, h.window.EvaluateJavaScript(h.window.ResolveToRenderProcessJavaScript("1", "0", `{"ok":"yes"}`)))
	h.eventually(t, `String(window.value)`, "yes")
}

func TestConcurrentForeignEvaluations(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>window.count = 0;</script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.window.EvaluateJavaScript(`window.count++`))
		}()
	}
	wg.Wait()

	h.eventually(t, `String(window.count)`, "50")
	assert.Zero(t, h.page.Attached())
	assert.Zero(t, h.page.LiveStrings())
}

func TestOwnerEvaluationIsSynchronous(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<p>empty</p>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	var seen string
	err := h.loop.Call(context.Background(), func() error {
		if err := h.window.EvaluateJavaScript(`window.direct = 'yes'`); err != nil {
			return err
		}
		var err error
		seen, err = h.page.rt.EvalString(`window.direct`)
		if err != nil {
			return err
		}
		return h.window.EvaluateJavaScript(`throw new Error('bad')`)
	})
	require.NoError(t, err, "script exceptions are not returned to the caller")
	assert.Equal(t, "yes", seen)
	assert.Zero(t, h.page.Attached())
}

func TestEvaluateScriptWrapsExceptions(t *testing.T) {
	h := newHarness(t, fstest.MapFS{"index.html": {Data: []byte(``)}})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))

	err := h.loop.Call(context.Background(), func() error {
		return h.page.EvaluateScript(`throw new TypeError('bad')`)
	})
	var scriptErr *core.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, scriptErr.Message, "bad")
}

func TestEvaluateScriptOffLoop(t *testing.T) {
	h := newHarness(t, fstest.MapFS{"index.html": {Data: []byte(``)}})
	assert.ErrorIs(t, h.page.EvaluateScript(`1`), ErrNotOnLoop)
}

func TestTimersRunOnPage(t *testing.T) {
	h := newHarness(t, fstest.MapFS{
		"index.html": {Data: []byte(`<script>
setTimeout(() => { window.fired = 'yes'; }, 5);
</script>`)},
	})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	h.eventually(t, `String(window.fired)`, "yes")
}

func TestReleaseDropsRuntime(t *testing.T) {
	h := newHarness(t, fstest.MapFS{"index.html": {Data: []byte(`<p></p>`)}})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	require.NoError(t, h.page.Release())
	require.NoError(t, h.page.Release())

	_, err := h.page.EvalString(context.Background(), `1`)
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.ErrorIs(t, h.page.Navigate(context.Background(), "/index.html"), core.ErrWindowClosed)
}

func TestConsoleBufferIsBounded(t *testing.T) {
	h := newHarness(t, fstest.MapFS{"index.html": {Data: []byte(`<p></p>`)}})
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	h.eval(t, `for (let i = 0; i < 1005; i++) console.log('line ' + i); ''`)

	logs := h.page.Logs()
	require.Len(t, logs, core.MaxLogEntries)
	assert.Equal(t, "line 5", logs[0].Message)
}

func TestKeyedInitScripts(t *testing.T) {
	h := newHarness(t, fstest.MapFS{"index.html": {Data: []byte(`<p></p>`)}})
	h.page.SetInit("", `window.order = ['anon'];`)
	h.page.SetInit("a", `window.order.push('a1');`)
	h.page.SetInit("b", `window.order.push('b');`)
	h.page.SetInit("a", `window.order.push('a2');`)
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	assert.Equal(t, "anon,a2,b", h.eval(t, `window.order.join(',')`))

	h.page.RemoveInit("a")
	h.page.RemoveInit("")
	require.NoError(t, h.page.Navigate(context.Background(), "/index.html"))
	assert.Equal(t, "anon,b", h.eval(t, `window.order.join(',')`))
}

func TestReleaseAfterLoopStopped(t *testing.T) {
	loop := eventloop.New()
	go func() { _ = loop.Run(context.Background()) }()
	page, err := New(loop, Options{
		Runtime: quickjs.Factory(),
		Assets:  assets.New(fstest.MapFS{"index.html": {Data: []byte(`<p></p>`)}}),
	})
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), "/index.html"))
	require.NoError(t, loop.Shutdown(context.Background()))

	require.NoError(t, page.Release())
	assert.Nil(t, page.rt)
}

func TestEvaluateAfterLoopStopped(t *testing.T) {
	loop := eventloop.New()
	go func() { _ = loop.Run(context.Background()) }()
	page, err := New(loop, Options{
		Runtime: quickjs.Factory(),
		Assets:  assets.New(fstest.MapFS{"index.html": {Data: []byte(`<p></p>`)}}),
	})
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), "/index.html"))
	require.NoError(t, loop.Shutdown(context.Background()))
	t.Cleanup(func() { _ = page.Release() })

	err = bridge.New(page).Evaluate("window.x = 1")
	assert.ErrorIs(t, err, core.ErrWindowClosed)
	assert.ErrorIs(t, err, eventloop.ErrLoopTerminated)
	assert.Zero(t, page.Attached())
	assert.Zero(t, page.LiveStrings())
}
