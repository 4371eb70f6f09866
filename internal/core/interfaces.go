package core

import "context"

// ConfigSource is the read-only user configuration (the parsed app config).
type ConfigSource interface {
	// Get returns the value for key, or "" when the key is absent.
	Get(key string) string
	// List returns the list value for key. Scalar values are split on
	// whitespace; absent keys yield nil.
	List(key string) []string
	// Keys returns every configured key in sorted order.
	Keys() []string
}

// EnvSource is the process environment.
type EnvSource interface {
	Has(key string) bool
	Get(key string) string
}

// NativeSurface is the platform object that displays web content. The
// adapter and bridge depend on it but never implement it.
type NativeSurface interface {
	// RootDirectory is the directory content is served from.
	RootDirectory() string
	// EvaluateScript evaluates src inside the surface. It must be called on
	// the surface's owning goroutine.
	EvaluateScript(src string) error
	// Release drops the native object. Called once by the owning window.
	Release() error
}

// Scheduler submits work onto the UI-owned execution context.
type Scheduler interface {
	// Submit enqueues fn. It never runs fn on the calling goroutine.
	Submit(fn func()) error
	// OnLoop reports whether the caller is the loop goroutine.
	OnLoop() bool
}

// DialogOptions selects what a native picker may return.
type DialogOptions struct {
	Files       bool
	Directories bool
	Title       string
	StartDir    string
}

// DialogProvider presents a native file or directory picker and blocks
// until the user chooses.
type DialogProvider interface {
	Open(ctx context.Context, opts DialogOptions) (string, error)
}
