package surface

import (
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/handle"
	"github.com/cryguy/webbridge/internal/router"
)

var windows = handle.NewTable[Window]()

// Alloc creates a window on the bridge registered as bridgeID, points r's
// evaluator at it and returns the window's handle.
func Alloc(bridgeID handle.ID, r *router.Router, native core.NativeSurface, cfg core.ConfigSource, env core.EnvSource, logger *zap.Logger) (handle.ID, error) {
	br, err := bridge.Lookup(bridgeID)
	if err != nil {
		return 0, err
	}
	w, err := NewWindow(native, br, cfg, env, logger)
	if err != nil {
		return 0, err
	}
	if r != nil {
		w.onClose = r.SetEvaluator(w.EvaluateJavaScript)
	}
	return windows.Put(w), nil
}

// FromHandle resolves a window handle.
func FromHandle(id handle.ID) (*Window, error) {
	w, err := windows.Get(id)
	if err != nil {
		return nil, core.ErrWindowNotInitialized
	}
	return w, nil
}

// Dealloc invalidates id and closes its window. The handle is gone before
// the native surface is released.
func Dealloc(id handle.ID) error {
	w, err := windows.Delete(id)
	if err != nil {
		return core.ErrWindowNotInitialized
	}
	return w.Close()
}

// PathToFileToLoad returns the initial document of window id.
func PathToFileToLoad(id handle.ID) (string, error) {
	w, err := FromHandle(id)
	if err != nil {
		return "", err
	}
	return w.PathToFileToLoad(), nil
}

// PreloadSource returns the preload script of window id.
func PreloadSource(id handle.ID) (string, error) {
	w, err := FromHandle(id)
	if err != nil {
		return "", err
	}
	return w.PreloadSource(), nil
}

// ResolveToRenderProcessJavaScript formats a resolution for window id.
func ResolveToRenderProcessJavaScript(id handle.ID, seq, state, value string) (string, error) {
	w, err := FromHandle(id)
	if err != nil {
		return "", err
	}
	return w.ResolveToRenderProcessJavaScript(seq, state, value), nil
}

// EvaluateJavaScript evaluates src in window id.
func EvaluateJavaScript(id handle.ID, src string) error {
	w, err := FromHandle(id)
	if err != nil {
		return err
	}
	return w.EvaluateJavaScript(src)
}
