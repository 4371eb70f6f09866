// Package bridge evaluates script text inside a rendering surface from any
// goroutine. Callers on the goroutine that owns the surface evaluate
// directly. Everyone else attaches to the execution environment for the
// duration of one call.
package bridge

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/metrics"
)

// StringRef is a string allocated inside the execution environment.
type StringRef any

// Handle is a usable reference into the execution environment.
type Handle interface {
	NewString(s string) (StringRef, error)
	Evaluate(ref StringRef) error
	ReleaseString(ref StringRef)
}

// Environment is the managed execution environment behind a surface.
type Environment interface {
	// OnOwner reports whether the caller owns the surface's execution context.
	OnOwner() bool
	// Owner returns the handle used on the owning goroutine.
	Owner() Handle
	// Attach returns a handle for the calling goroutine. attached is true
	// when this call created the attachment and Detach must undo it.
	Attach() (h Handle, attached bool, err error)
	Detach() error
}

// Bridge evaluates scripts through an Environment.
type Bridge struct {
	env     Environment
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a bridge over env.
func New(env Environment, opts ...Option) *Bridge {
	b := &Bridge{env: env, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Evaluate runs src in the surface. Exceptions raised by the script and
// panics in the environment are logged and swallowed; only missing
// preconditions, including a surface that is gone, are returned.
func (b *Bridge) Evaluate(src string) error {
	if b == nil || b.env == nil {
		return core.ErrBridgeNotInitialized
	}

	if b.env.OnOwner() {
		h := b.env.Owner()
		if h == nil {
			return core.ErrBridgeNotInitialized
		}
		b.metrics.Evaluation(metrics.PathDirect)
		return b.call(h, src)
	}

	h, attached, err := b.env.Attach()
	if err != nil {
		return fmt.Errorf("bridge: attach: %w", err)
	}
	if attached {
		b.metrics.Attachment(metrics.OpAttach)
		defer b.detach()
	}
	if h == nil {
		return core.ErrBridgeNotInitialized
	}
	b.metrics.Evaluation(metrics.PathAttached)
	return b.call(h, src)
}

func (b *Bridge) detach() {
	b.metrics.Attachment(metrics.OpDetach)
	if err := b.env.Detach(); err != nil {
		b.logger.Warn("detach failed", zap.Error(err))
	}
}

func (b *Bridge) call(h Handle, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.EvaluationFailure()
			b.logger.Error("evaluation panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = nil
		}
	}()

	ref, err := h.NewString(src)
	if err != nil {
		return fmt.Errorf("bridge: allocating script: %w", err)
	}
	defer h.ReleaseString(ref)

	if evalErr := h.Evaluate(ref); evalErr != nil {
		if isPrecondition(evalErr) {
			return fmt.Errorf("bridge: evaluate: %w", evalErr)
		}
		b.metrics.EvaluationFailure()
		b.logger.Warn("script raised", zap.Error(core.NewScriptError(src, evalErr)))
	}
	return nil
}

// isPrecondition reports whether err means the surface could not take the
// script at all, as opposed to the script raising.
func isPrecondition(err error) bool {
	return errors.Is(err, core.ErrWindowClosed) ||
		errors.Is(err, core.ErrWindowNotInitialized) ||
		errors.Is(err, core.ErrBridgeNotInitialized)
}
