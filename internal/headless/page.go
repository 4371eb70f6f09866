// Package headless is a rendering surface without a display: a script
// runtime owned by an event loop, loaded with a page environment and the
// scripts of an HTML document. The whole bridge protocol runs against it.
package headless

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/assets"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
	"github.com/cryguy/webbridge/internal/logging"
	"github.com/cryguy/webbridge/internal/webapi"
)

// ErrNotOnLoop is returned when page script is touched off the loop goroutine.
var ErrNotOnLoop = errors.New("headless: not on the page loop")

// ErrNoDocument is returned by operations that need a loaded page.
var ErrNoDocument = errors.New("headless: no document loaded")

// Options configures a Page.
type Options struct {
	// Runtime creates the script engine for each loaded document.
	Runtime core.RuntimeFactory
	// Assets serves documents and external scripts.
	Assets *assets.FS
	// Origin prefixes document paths in window.location.
	Origin string
	// OnMessage receives every envelope the page posts.
	OnMessage func(message string)
	Logger    *zap.Logger
}

// Page is a headless rendering surface. Script runs only on its loop.
type Page struct {
	loop    *eventloop.Loop
	factory core.RuntimeFactory
	assets  *assets.FS
	origin  string
	post    func(string)
	logger  *zap.Logger
	console func(level, message string)

	// rt is touched only on the loop goroutine.
	rt core.JSRuntime

	mu       sync.Mutex
	preload  string
	inits    []initScript
	logs     []core.LogEntry
	attached map[uint64]int
	live     int
	released bool
}

var _ core.NativeSurface = (*Page)(nil)

// New creates a page bound to loop. No document is loaded until Navigate.
func New(loop *eventloop.Loop, opts Options) (*Page, error) {
	if loop == nil {
		return nil, errors.New("headless: nil loop")
	}
	if opts.Runtime == nil {
		return nil, errors.New("headless: no runtime factory")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origin := opts.Origin
	if origin == "" {
		origin = "webbridge://localhost"
	}
	return &Page{
		loop:     loop,
		factory:  opts.Runtime,
		assets:   opts.Assets,
		origin:   strings.TrimSuffix(origin, "/"),
		post:     opts.OnMessage,
		logger:   logger.Named("headless"),
		console:  logging.PageLogger(logger),
		attached: map[uint64]int{},
	}, nil
}

// Loop returns the page's owning loop.
func (p *Page) Loop() *eventloop.Loop {
	return p.loop
}

// SetPreload sets the script evaluated before any document script.
func (p *Page) SetPreload(src string) {
	p.mu.Lock()
	p.preload = src
	p.mu.Unlock()
}

type initScript struct {
	key, src string
}

// SetInit installs the init script stored under key, replacing it in place
// when key is already set.
func (p *Page) SetInit(key, src string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.inits {
		if p.inits[i].key == key && key != "" {
			p.inits[i].src = src
			return
		}
	}
	p.inits = append(p.inits, initScript{key: key, src: src})
}

// RemoveInit drops the init script stored under key.
func (p *Page) RemoveInit(key string) {
	if key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits = slices.DeleteFunc(p.inits, func(s initScript) bool { return s.key == key })
}

// RootDirectory is the asset root.
func (p *Page) RootDirectory() string {
	if p.assets == nil {
		return ""
	}
	return p.assets.Root()
}

// EvaluateScript runs src in the current document and drains microtasks.
// It must be called on the loop goroutine.
func (p *Page) EvaluateScript(src string) error {
	err := p.evaluate(src)
	if err == nil || errors.Is(err, ErrNotOnLoop) || errors.Is(err, ErrNoDocument) {
		return err
	}
	return core.NewScriptError(src, err)
}

// evaluate returns the engine's exception unwrapped.
func (p *Page) evaluate(src string) error {
	if !p.loop.OnLoop() {
		return ErrNotOnLoop
	}
	if p.rt == nil {
		return ErrNoDocument
	}
	err := p.rt.Eval(src)
	p.rt.RunMicrotasks()
	return err
}

// Release closes the runtime. Later evaluations fail with ErrNoDocument.
func (p *Page) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	p.mu.Unlock()

	release := func() error {
		p.loop.ResetTimers()
		p.loop.SetTimerHandler(nil)
		if p.rt == nil {
			return nil
		}
		err := p.rt.Close()
		p.rt = nil
		return err
	}
	if p.loop.OnLoop() {
		return release()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.loop.Call(ctx, release)
	if errors.Is(err, eventloop.ErrLoopTerminated) {
		// Nothing runs on a stopped loop; close from here.
		<-p.loop.Done()
		return release()
	}
	return err
}

// Navigate replaces the current document with the HTML at docPath: a fresh
// runtime gets the page environment, the preload, the init scripts and then
// the document's scripts in order, followed by DOMContentLoaded and load.
func (p *Page) Navigate(ctx context.Context, docPath string) error {
	if p.assets == nil {
		return errors.New("headless: no assets to navigate in")
	}
	html, err := p.assets.Open(docPath)
	if err != nil {
		return err
	}
	doc, err := parseDocument(docPath, html)
	if err != nil {
		return err
	}
	return p.loop.Call(ctx, func() error { return p.load(docPath, doc) })
}

// LoadHTML loads an in-memory document as if it were served at docPath.
func (p *Page) LoadHTML(ctx context.Context, docPath, html string) error {
	doc, err := parseDocument(docPath, []byte(html))
	if err != nil {
		return err
	}
	return p.loop.Call(ctx, func() error { return p.load(docPath, doc) })
}

func (p *Page) load(docPath string, doc *document) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return core.ErrWindowClosed
	}
	preload := p.preload
	inits := slices.Clone(p.inits)
	p.mu.Unlock()

	p.loop.ResetTimers()
	if p.rt != nil {
		if err := p.rt.Close(); err != nil {
			p.logger.Warn("closing previous runtime", zap.Error(err))
		}
		p.rt = nil
	}

	rt, err := p.factory()
	if err != nil {
		return fmt.Errorf("headless: creating runtime: %w", err)
	}
	host := &webapi.Host{
		Loop:     p.loop,
		Console:  p.onConsole,
		Post:     p.onPost,
		Location: p.origin + "/" + strings.TrimPrefix(docPath, "/"),
	}
	if err := webapi.Setup(rt, host); err != nil {
		_ = rt.Close()
		return fmt.Errorf("headless: page environment: %w", err)
	}
	p.rt = rt

	if doc.Title != "" {
		_ = p.rt.SetGlobal("__documentTitle", doc.Title)
		_ = p.rt.Eval("document.title = globalThis.__documentTitle; delete globalThis.__documentTitle;")
	}

	if preload != "" {
		if err := p.EvaluateScript(preload); err != nil {
			return fmt.Errorf("headless: preload: %w", err)
		}
	}
	for _, s := range inits {
		p.runPageScript("init", s.src)
	}
	for _, s := range doc.Scripts {
		name, src, err := p.scriptSource(docPath, s)
		if err != nil {
			p.onConsole("error", err.Error())
			p.logger.Warn("script not loaded", zap.String("script", name), zap.Error(err))
			continue
		}
		p.runPageScript(name, src)
	}

	p.runPageScript("lifecycle", `
		document.readyState = 'interactive';
		document.dispatchEvent(new Event('DOMContentLoaded'));
		window.dispatchEvent(new Event('DOMContentLoaded'));
		document.readyState = 'complete';
		window.dispatchEvent(new Event('load'));
	`)
	p.logger.Debug("document loaded", zap.String("path", docPath), zap.Int("scripts", len(doc.Scripts)))
	return nil
}

// scriptSource returns the classic script to evaluate for s. Module scripts
// with imports are bundled from the page assets first.
func (p *Page) scriptSource(docPath string, s pageScript) (name, src string, err error) {
	name, src = "/"+strings.TrimPrefix(docPath, "/"), s.Text
	if s.Src != "" {
		if p.assets == nil {
			return s.Src, "", ErrNoDocument
		}
		data, err := p.assets.Open(s.Src)
		if err != nil {
			return s.Src, "", err
		}
		name, src = s.Src, string(data)
	}
	if s.Module && p.assets != nil && needsBundling(src) {
		src, err = bundleModule(p.assets, name, src)
		if err != nil {
			return name, "", err
		}
	}
	return name, src, nil
}

// runPageScript evaluates a page script; failures are reported the way a
// browser reports uncaught script errors, and loading continues.
func (p *Page) runPageScript(name, src string) {
	if err := p.EvaluateScript(src); err != nil {
		p.onConsole("error", "Uncaught "+err.Error())
		p.logger.Debug("page script failed", zap.String("script", name), zap.Error(err))
	}
}

func (p *Page) onPost(message string) {
	if p.post == nil {
		return
	}
	p.post(message)
}

func (p *Page) onConsole(level, message string) {
	if len(message) > core.MaxLogMessageSize {
		message = message[:core.MaxLogMessageSize] + "...(truncated)"
	}
	p.mu.Lock()
	if len(p.logs) >= core.MaxLogEntries {
		p.logs = p.logs[1:]
	}
	p.logs = append(p.logs, core.LogEntry{Level: level, Message: message, Time: time.Now()})
	p.mu.Unlock()
	p.console(level, message)
}

// Logs returns the captured page console output.
func (p *Page) Logs() []core.LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.LogEntry(nil), p.logs...)
}

// EvalString evaluates js on the loop and returns its string result. It is
// meant for tests and tooling.
func (p *Page) EvalString(ctx context.Context, js string) (string, error) {
	var out string
	err := p.loop.Call(ctx, func() error {
		if p.rt == nil {
			return ErrNoDocument
		}
		var err error
		out, err = p.rt.EvalString(js)
		p.rt.RunMicrotasks()
		return err
	})
	return out, err
}
