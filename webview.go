// Package webbridge connects script running in a rendering surface to
// native Go handlers. Page code calls bindings as promise-returning
// functions on window.system; handlers run on the surface's loop and
// answer with Resolve, Reject or Emit from any goroutine.
package webbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/assets"
	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/config"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/devserver"
	"github.com/cryguy/webbridge/internal/dialog"
	"github.com/cryguy/webbridge/internal/eventloop"
	"github.com/cryguy/webbridge/internal/handle"
	"github.com/cryguy/webbridge/internal/headless"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/registry"
	"github.com/cryguy/webbridge/internal/router"
	"github.com/cryguy/webbridge/internal/script"
	"github.com/cryguy/webbridge/internal/surface"
)

// Callback handles one call of a binding. seq identifies the pending call
// in the page and req is the JSON-encoded argument. arg is the value given
// to Bind.
type Callback = registry.Callback

// DialogOptions selects what a picker may return.
type DialogOptions = core.DialogOptions

// Hint says how SetSize constrains the window.
type Hint int

const (
	// HintNone sets the current size.
	HintNone Hint = iota
	// HintMin sets the minimum size.
	HintMin
	// HintMax sets the maximum size.
	HintMax
	// HintFixed sets a size the user cannot change.
	HintFixed
)

func (h Hint) String() string {
	switch h {
	case HintNone:
		return "none"
	case HintMin:
		return "min"
	case HintMax:
		return "max"
	case HintFixed:
		return "fixed"
	}
	return fmt.Sprintf("Hint(%d)", int(h))
}

// Size is the window size last requested with SetSize.
type Size struct {
	Width, Height int
	Hint          Hint
}

// ErrTerminated is returned when a Webview is used after Destroy.
var ErrTerminated = errors.New("webbridge: webview terminated")

const shutdownTimeout = 5 * time.Second

// scriptHost is the surface that receives init scripts.
type scriptHost interface {
	SetInit(key, src string)
	RemoveInit(key string)
}

// Webview owns one surface, its loop and its bindings.
type Webview struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	loop   *eventloop.Loop
	router *router.Router
	host   scriptHost

	page *headless.Page
	dev  *devserver.Server

	bridgeID handle.ID
	windowID handle.ID
	window   *surface.Window

	navigated atomic.Bool
	inits     atomic.Int64

	mu   sync.Mutex
	size Size

	destroyOnce sync.Once
	destroyed   atomic.Bool
}

// New creates a webview. Nothing runs until Run.
func New(opts Options) (*Webview, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Env == nil {
		opts.Env = config.OSEnv{}
	}
	if opts.Dialog == nil {
		opts.Dialog = dialog.Terminal{}
	}
	fsys, err := assetsOf(opts)
	if err != nil {
		return nil, err
	}

	w := &Webview{
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		loop:    eventloop.New(eventloop.WithLogger(logger.Named("loop"))),
	}
	w.router = router.New(registry.New(), w.loop,
		router.WithLogger(logger),
		router.WithMetrics(opts.Metrics))

	if opts.DevAddr != "" {
		w.dev, err = devserver.New(devserver.Config{
			Addr:           opts.DevAddr,
			Assets:         fsys,
			Router:         w.router,
			Scheduler:      w.loop,
			UserConfig:     opts.Config,
			Env:            opts.Env,
			Metrics:        opts.Metrics,
			Logger:         logger,
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return nil, err
		}
		w.host = w.dev
		return w, nil
	}

	if err := w.openPage(fsys); err != nil {
		return nil, err
	}
	return w, nil
}

func assetsOf(opts Options) (*assets.FS, error) {
	switch {
	case opts.Assets != nil:
		return assets.New(opts.Assets), nil
	case opts.Root != "":
		return assets.Dir(opts.Root), nil
	}
	return nil, errors.New("webbridge: no page content: set Root or Assets")
}

// openPage allocates the headless page and the window that owns it.
func (w *Webview) openPage(fsys *assets.FS) error {
	page, err := headless.New(w.loop, headless.Options{
		Runtime:   newRuntimeFactory(w.opts),
		Assets:    fsys,
		Origin:    w.opts.Origin,
		OnMessage: w.router.OnMessage,
		Logger:    w.logger,
	})
	if err != nil {
		return err
	}
	br := bridge.New(page, bridge.WithLogger(w.logger), bridge.WithMetrics(w.metrics))
	w.bridgeID = bridge.Register(br)
	w.windowID, err = surface.Alloc(w.bridgeID, w.router, page, w.opts.Config, w.opts.Env, w.logger)
	if err != nil {
		_ = bridge.Unregister(w.bridgeID)
		return err
	}
	w.window, err = surface.FromHandle(w.windowID)
	if err != nil {
		return err
	}
	page.SetPreload(w.window.PreloadSource())
	w.page = page
	w.host = page
	return nil
}

// Run runs the surface's loop on the calling goroutine until Terminate or
// ctx is done. A headless webview loads its configured root document first
// unless Navigate was called.
func (w *Webview) Run(ctx context.Context) error {
	if w.destroyed.Load() {
		return ErrTerminated
	}
	if w.dev != nil {
		addr, err := w.dev.Start()
		if err != nil {
			return fmt.Errorf("webbridge: starting dev server: %w", err)
		}
		w.logger.Info("open the page in a browser", zap.String("url", "http://"+addr.String()+"/"))
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = w.dev.Shutdown(sctx)
		}()
	} else if !w.navigated.Load() {
		_ = w.Navigate(w.window.PathToFileToLoad())
	}

	err := w.loop.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Terminate stops the loop. Queued work finishes first. It is safe to call
// from a binding.
func (w *Webview) Terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.loop.Shutdown(ctx); err != nil {
		w.logger.Warn("loop did not stop in time", zap.Error(err))
	}
}

// Destroy terminates the webview and releases its surface. Later calls
// return ErrTerminated.
func (w *Webview) Destroy() error {
	err := ErrTerminated
	w.destroyOnce.Do(func() {
		w.destroyed.Store(true)
		w.Terminate()
		w.router.UnbindAll()
		err = nil
		if w.page != nil {
			if derr := surface.Dealloc(w.windowID); derr != nil {
				err = derr
			}
			_ = bridge.Unregister(w.bridgeID)
		}
	})
	return err
}

// Navigate loads the document at path. In a headless webview it replaces
// the page and reruns the init scripts; with the dev server it asks the
// connected browser to go there.
func (w *Webview) Navigate(path string) error {
	if w.destroyed.Load() {
		return ErrTerminated
	}
	w.navigated.Store(true)
	if w.page == nil {
		return w.router.Eval(fmt.Sprintf("window.location.assign(%s);", jsString(path)))
	}
	return w.loop.Submit(func() {
		if err := w.page.Navigate(context.Background(), path); err != nil {
			w.logger.Warn("navigation failed", zap.String("path", path), zap.Error(err))
		}
	})
}

// Init adds script that runs after the preload and before page content on
// every load.
func (w *Webview) Init(js string) {
	key := fmt.Sprintf("init:%d", w.inits.Add(1))
	w.host.SetInit(key, js)
}

// Bind exposes fn to page code as window.system[name]. Calls are
// dispatched on the loop; fn answers them with Resolve or Reject. Binding a
// name again replaces the handler.
func (w *Webview) Bind(name string, fn Callback, arg any) error {
	if err := w.router.Bind(name, fn, arg); err != nil {
		return err
	}
	src := script.BindingInit(name)
	w.host.SetInit(bindingKey(name), src)
	if w.navigated.Load() {
		w.evalLoaded(src)
	}
	return nil
}

// BindFunc is Bind for handlers that need no extra argument.
func (w *Webview) BindFunc(name string, fn func(seq, req string)) error {
	if fn == nil {
		return registry.ErrInvalidBinding
	}
	return w.Bind(name, func(seq, req string, _ any) { fn(seq, req) }, nil)
}

// Unbind removes a binding from the router and the page.
func (w *Webview) Unbind(name string) {
	w.router.Unbind(name)
	w.host.RemoveInit(bindingKey(name))
	if w.navigated.Load() {
		w.evalLoaded(fmt.Sprintf("if (window.system) delete window.system[%s];", jsString(name)))
	}
}

func bindingKey(name string) string {
	return "bind:" + name
}

// evalLoaded evaluates src in the current document when there is one.
func (w *Webview) evalLoaded(src string) {
	if err := w.router.Eval(src); err != nil && !errors.Is(err, core.ErrWindowNotInitialized) {
		w.logger.Debug("script not delivered", zap.Error(err))
	}
}

// Dispatch runs fn on the loop.
func (w *Webview) Dispatch(fn func()) error {
	return w.loop.Submit(fn)
}

// Eval evaluates js in the page on the loop.
func (w *Webview) Eval(js string) error {
	return w.router.Eval(js)
}

// Resolve fulfills the page's pending call seq with result.
func (w *Webview) Resolve(seq, result string) error {
	return w.router.Resolve(seq, result)
}

// Reject fails the page's pending call seq with message.
func (w *Webview) Reject(seq, message string) error {
	return w.router.Reject(seq, message)
}

// Return settles seq: status zero resolves with result, anything else
// rejects with it.
func (w *Webview) Return(seq string, status int, result string) error {
	if status == 0 {
		return w.Resolve(seq, result)
	}
	return w.Reject(seq, result)
}

// Emit dispatches a CustomEvent on the page's window with v as its detail.
func (w *Webview) Emit(event string, v any) error {
	return w.router.EmitJSON(event, v)
}

// EmitRaw dispatches event with detail given as percent-encoded JSON.
func (w *Webview) EmitRaw(event, data string) error {
	return w.router.Emit(event, data)
}

// Dialog opens a picker and settles seq with the chosen path.
func (w *Webview) Dialog(ctx context.Context, seq string, opts DialogOptions) error {
	return w.router.Dialog(ctx, seq, opts, w.opts.Dialog)
}

// SetSize records the requested window size.
func (w *Webview) SetSize(width, height int, hint Hint) {
	w.mu.Lock()
	w.size = Size{Width: width, Height: height, Hint: hint}
	w.mu.Unlock()
	w.logger.Debug("window size", zap.Int("width", width), zap.Int("height", height), zap.Stringer("hint", hint))
}

// Size returns the size last passed to SetSize.
func (w *Webview) Size() Size {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Logs returns the console output of a headless page.
func (w *Webview) Logs() []core.LogEntry {
	if w.page == nil {
		return nil
	}
	return w.page.Logs()
}

// EvalString evaluates js in a headless page and returns its string value.
func (w *Webview) EvalString(ctx context.Context, js string) (string, error) {
	if w.page == nil {
		return "", errors.New("webbridge: EvalString needs a headless page")
	}
	return w.page.EvalString(ctx, js)
}

// Metrics returns the collectors the webview records into, if any.
func (w *Webview) Metrics() *metrics.Metrics {
	return w.metrics
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
