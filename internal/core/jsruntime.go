package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) that backs a
// headless rendering surface. Implementations are single-threaded: every
// method must be called on the goroutine that owns the surface's event loop.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// The function's Go types are automatically marshaled to/from JS types.
	// On error return, the JS wrapper throws a TypeError instead of
	// returning an array.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()

	// Close releases the engine. The runtime must not be used afterwards.
	Close() error
}

// RuntimeFactory creates a fresh JSRuntime. It is invoked on the goroutine
// that will own the runtime.
type RuntimeFactory func() (JSRuntime, error)
