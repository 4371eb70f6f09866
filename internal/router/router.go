// Package router connects page messages to native bindings and carries
// their results back into the page. Handlers and evaluations are always
// submitted to the surface's scheduler, never run on the caller.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/ipc"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/registry"
	"github.com/cryguy/webbridge/internal/script"
)

// Evaluator runs script text in the page. It is called on the scheduler.
type Evaluator func(src string) error

// Router dispatches decoded messages to registered bindings.
type Router struct {
	registry *registry.Registry
	sched    core.Scheduler

	mu      sync.RWMutex
	eval    Evaluator
	evalGen uint64

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a router over reg that runs handlers on sched.
func New(reg *registry.Registry, sched core.Scheduler, opts ...Option) *Router {
	if reg == nil {
		reg = registry.New()
	}
	r := &Router{registry: reg, sched: sched, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEvaluator installs the page evaluator. A nil fn detaches the page.
// The returned detach removes fn only while it is still the installed
// evaluator, so a page torn down late cannot detach its replacement.
func (r *Router) SetEvaluator(fn Evaluator) (detach func()) {
	r.mu.Lock()
	r.evalGen++
	r.eval = fn
	gen := r.evalGen
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if r.evalGen == gen {
			r.eval = nil
		}
		r.mu.Unlock()
	}
}

func (r *Router) evaluator() Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eval
}

// Registry returns the bindings table.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Bind registers cb under name, replacing any earlier binding.
func (r *Router) Bind(name string, cb registry.Callback, ctx any) error {
	replaced, err := r.registry.Register(name, cb, ctx)
	if err != nil {
		return err
	}
	if replaced {
		r.logger.Debug("binding replaced", zap.String("name", name))
	}
	r.metrics.SetBindings(r.registry.Len())
	return nil
}

// BindFunc registers a handler that needs no context value.
func (r *Router) BindFunc(name string, fn func(seq, req string)) error {
	if fn == nil {
		return registry.ErrInvalidBinding
	}
	return r.Bind(name, func(seq, args string, _ any) { fn(seq, args) }, nil)
}

// Unbind removes a binding. Unknown names are ignored.
func (r *Router) Unbind(name string) {
	if r.registry.Unregister(name) {
		r.metrics.SetBindings(r.registry.Len())
	}
}

// UnbindAll removes every binding.
func (r *Router) UnbindAll() {
	r.registry.Reset()
	r.metrics.SetBindings(0)
}

// OnMessage handles a full envelope posted by the page client.
func (r *Router) OnMessage(raw string) {
	r.Dispatch(ipc.DecodeEnvelope(raw))
}

// Binding handles a name-prefixed call that carries no sequence id.
func (r *Router) Binding(raw string) {
	r.Dispatch(ipc.DecodeBinding(raw))
}

// Dispatch schedules the binding named by msg. Malformed messages and
// unknown names are dropped without a reply.
func (r *Router) Dispatch(msg ipc.Message) {
	if bad, ok := msg.(ipc.Malformed); ok {
		r.metrics.Message(metrics.ResultMalformed)
		r.logger.Warn("dropping malformed message", zap.String("reason", bad.Reason), zap.String("raw", bad.Raw))
		return
	}
	seq, name, args, ok := ipc.Call(msg)
	if !ok {
		r.metrics.Message(metrics.ResultMalformed)
		return
	}

	entry, found := r.registry.Lookup(name)
	if !found {
		r.metrics.Message(metrics.ResultUnknown)
		r.logger.Debug("no binding for message", zap.String("name", name), zap.String("seq", seq))
		return
	}

	err := r.sched.Submit(func() { r.invoke(entry, seq, args) })
	if err != nil {
		r.metrics.Message(metrics.ResultDropped)
		r.logger.Warn("dropping message", zap.String("name", name), zap.Error(err))
		return
	}
	r.metrics.Message(metrics.ResultDispatched)
}

func (r *Router) invoke(entry registry.Entry, seq, args string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("binding panicked", zap.String("name", entry.Name), zap.String("seq", seq), zap.Any("panic", p))
		}
	}()
	entry.Callback(seq, args, entry.Context)
}

// Resolve fulfills the page's pending call seq with payload.
func (r *Router) Resolve(seq, payload string) error {
	return r.submit(script.Resolve(seq, payload))
}

// Reject fails the page's pending call seq with message.
func (r *Router) Reject(seq, message string) error {
	return r.submit(script.Reject(seq, message))
}

// Emit dispatches event on the page's window. data is percent-encoded JSON.
func (r *Router) Emit(event, data string) error {
	if err := r.submit(script.Emit(event, data)); err != nil {
		return err
	}
	r.metrics.Event(event)
	return nil
}

// EmitJSON marshals v and emits it as the detail of event.
func (r *Router) EmitJSON(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("router: encoding %q detail: %w", event, err)
	}
	return r.Emit(event, script.EncodeURIComponent(string(b)))
}

// Eval submits arbitrary script to the page.
func (r *Router) Eval(src string) error {
	return r.submit(src)
}

// Dialog opens a picker on a worker goroutine and settles the page's pending
// call seq with the chosen path, or rejects it when the picker fails.
func (r *Router) Dialog(ctx context.Context, seq string, opts core.DialogOptions, provider core.DialogProvider) error {
	if provider == nil {
		return errors.New("router: no dialog provider")
	}
	if r.evaluator() == nil {
		return core.ErrWindowNotInitialized
	}
	go func() {
		path, err := provider.Open(ctx, opts)
		if err != nil {
			r.logger.Debug("dialog failed", zap.String("seq", seq), zap.Error(err))
			err = r.Reject(seq, err.Error())
		} else {
			err = r.submit(script.DialogResult(seq, path))
		}
		if err != nil {
			r.logger.Warn("dialog result dropped", zap.String("seq", seq), zap.Error(err))
		}
	}()
	return nil
}

func (r *Router) submit(src string) error {
	eval := r.evaluator()
	if eval == nil {
		return core.ErrWindowNotInitialized
	}
	err := r.sched.Submit(func() {
		if err := eval(src); err != nil {
			r.logger.Warn("evaluation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("router: submitting script: %w", err)
	}
	return nil
}
