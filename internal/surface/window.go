// Package surface adapts a native rendering surface: it snapshots the
// configuration the page may see, computes the preload script and answers
// what to load and what to inject before loading.
package surface

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/script"
)

// DefaultFileToLoad is loaded when webview.root is unset.
const DefaultFileToLoad = "/index.html"

// Configuration keys read at construction.
const (
	KeyEnv      = "build.env"
	KeyHeadless = "build.headless"
	KeyDebug    = "build.debug"
	KeyArgv     = "ssc.argv"
	KeyRoot     = "webview.root"
)

// Options is the configuration snapshot of one window. It never changes
// after NewWindow returns.
type Options struct {
	UserConfig  map[string]string
	Environment map[string]string
	Env         string
	Headless    bool
	Debug       bool
	IsTest      bool
	Argv        []string
	Cwd         string
}

// Window is the single owner of a native surface.
type Window struct {
	native  core.NativeSurface
	bridge  *bridge.Bridge
	opts    Options
	preload string
	root    string

	mu      sync.Mutex
	closed  bool
	onClose func()

	logger *zap.Logger
}

// NewWindow captures cfg and the allow-listed part of env, then computes the
// preload script.
func NewWindow(native core.NativeSurface, br *bridge.Bridge, cfg core.ConfigSource, env core.EnvSource, logger *zap.Logger) (*Window, error) {
	if native == nil {
		return nil, core.ErrWindowNotInitialized
	}
	if br == nil {
		return nil, core.ErrBridgeNotInitialized
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := snapshot(native.RootDirectory(), cfg, env)
	preload, err := preloadOf(opts)
	if err != nil {
		return nil, err
	}

	root := DefaultFileToLoad
	if cfg != nil {
		if r := cfg.Get(KeyRoot); r != "" {
			root = r
		}
	}

	logger.Debug("window created",
		zap.String("cwd", opts.Cwd),
		zap.Bool("debug", opts.Debug),
		zap.Bool("headless", opts.Headless),
		zap.Int("env", len(opts.Environment)))

	return &Window{
		native:  native,
		bridge:  br,
		opts:    opts,
		preload: preload,
		root:    root,
		logger:  logger,
	}, nil
}

// PreloadFor computes the preload script a window rooted at cwd would get,
// for surfaces that load the page before any window exists.
func PreloadFor(cwd string, cfg core.ConfigSource, env core.EnvSource) (string, error) {
	return preloadOf(snapshot(cwd, cfg, env))
}

func preloadOf(opts Options) (string, error) {
	preload, err := script.Preload(script.PreloadOptions{
		Argv:     opts.Argv,
		Cwd:      opts.Cwd,
		Debug:    opts.Debug,
		Headless: opts.Headless,
		Test:     opts.IsTest,
		Env:      opts.Env,
		Config:   opts.UserConfig,
	})
	if err != nil {
		return "", fmt.Errorf("surface: building preload: %w", err)
	}
	return preload, nil
}

func snapshot(cwd string, cfg core.ConfigSource, env core.EnvSource) Options {
	opts := Options{
		UserConfig:  map[string]string{},
		Environment: map[string]string{},
		Cwd:         cwd,
	}
	if cfg != nil {
		for _, k := range cfg.Keys() {
			opts.UserConfig[k] = cfg.Get(k)
		}
		opts.Argv = cfg.List(KeyArgv)
		opts.Headless = cfg.Get(KeyHeadless) == "true"
		opts.Debug = cfg.Get(KeyDebug) == "true"
		if env != nil {
			for _, k := range cfg.List(KeyEnv) {
				if env.Has(k) {
					if v := env.Get(k); v != "" {
						opts.Environment[k] = v
					}
				}
			}
		}
	}
	if opts.Argv == nil {
		opts.Argv = []string{}
	}
	opts.Debug = opts.Debug || slices.Contains(opts.Argv, "--debug")
	opts.IsTest = slices.Contains(opts.Argv, "--test")
	opts.Env = encodeEnv(opts.Environment)
	return opts
}

// encodeEnv renders vars as k=v pairs joined by &, sorted by key, with both
// sides percent-encoded.
func encodeEnv(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, script.EncodeURIComponent(k)+"="+script.EncodeURIComponent(vars[k]))
	}
	return strings.Join(pairs, "&")
}

// Options returns a copy of the configuration snapshot.
func (w *Window) Options() Options {
	o := w.opts
	o.UserConfig = make(map[string]string, len(w.opts.UserConfig))
	for k, v := range w.opts.UserConfig {
		o.UserConfig[k] = v
	}
	o.Environment = make(map[string]string, len(w.opts.Environment))
	for k, v := range w.opts.Environment {
		o.Environment[k] = v
	}
	o.Argv = append([]string(nil), w.opts.Argv...)
	return o
}

// PathToFileToLoad is the initial document path.
func (w *Window) PathToFileToLoad() string {
	return w.root
}

// PreloadSource is the script injected before every page load.
func (w *Window) PreloadSource() string {
	return w.preload
}

// ResolveToRenderProcessJavaScript returns script that settles the page's
// pending call seq with value.
func (w *Window) ResolveToRenderProcessJavaScript(seq, state, value string) string {
	return script.ResolveToRenderProcess(seq, state, script.EncodeURIComponent(value))
}

// EvaluateJavaScript evaluates src in the surface through the bridge.
func (w *Window) EvaluateJavaScript(src string) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return core.ErrWindowClosed
	}
	return w.bridge.Evaluate(src)
}

// Close releases the native surface. Closing twice returns ErrWindowClosed.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return core.ErrWindowClosed
	}
	w.closed = true
	onClose := w.onClose
	w.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	if err := w.native.Release(); err != nil {
		return fmt.Errorf("surface: releasing native surface: %w", err)
	}
	w.logger.Debug("window closed")
	return nil
}
