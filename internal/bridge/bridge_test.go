package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/metrics"
)

type fakeString struct{ s string }

type fakeHandle struct {
	env *fakeEnv
}

func (h *fakeHandle) NewString(s string) (StringRef, error) {
	if h.env.failAlloc {
		return nil, errors.New("out of memory")
	}
	h.env.allocs.Add(1)
	return &fakeString{s: s}, nil
}

func (h *fakeHandle) Evaluate(ref StringRef) error {
	src := ref.(*fakeString).s
	h.env.mu.Lock()
	h.env.evaluated = append(h.env.evaluated, src)
	h.env.mu.Unlock()
	switch src {
	case "throw":
		return errors.New("ReferenceError: x is not defined")
	case "panic":
		panic("engine fault")
	case "gone":
		return core.ErrWindowClosed
	}
	return nil
}

func (h *fakeHandle) ReleaseString(StringRef) {
	h.env.releases.Add(1)
}

type fakeEnv struct {
	owner       bool
	preAttached bool
	failAttach  bool
	failAlloc   bool

	attaches atomic.Int64
	detaches atomic.Int64
	allocs   atomic.Int64
	releases atomic.Int64

	mu        sync.Mutex
	evaluated []string
}

func (e *fakeEnv) OnOwner() bool { return e.owner }
func (e *fakeEnv) Owner() Handle { return &fakeHandle{env: e} }

func (e *fakeEnv) Attach() (Handle, bool, error) {
	if e.failAttach {
		return nil, false, errors.New("no vm")
	}
	if e.preAttached {
		return &fakeHandle{env: e}, false, nil
	}
	e.attaches.Add(1)
	return &fakeHandle{env: e}, true, nil
}

func (e *fakeEnv) Detach() error {
	e.detaches.Add(1)
	return nil
}

func TestEvaluateNilBridge(t *testing.T) {
	var b *Bridge
	assert.ErrorIs(t, b.Evaluate("1"), core.ErrBridgeNotInitialized)
	assert.ErrorIs(t, New(nil).Evaluate("1"), core.ErrBridgeNotInitialized)
}

func TestEvaluateOnOwnerIsDirect(t *testing.T) {
	env := &fakeEnv{owner: true}
	m := metrics.New()
	b := New(env, WithMetrics(m))

	require.NoError(t, b.Evaluate("window.x = 1"))

	assert.Equal(t, []string{"window.x = 1"}, env.evaluated)
	assert.Zero(t, env.attaches.Load())
	assert.Zero(t, env.detaches.Load())
	assert.Equal(t, int64(1), env.releases.Load())
	_, evaluations, _, _ := m.Collectors()
	assert.Equal(t, 1.0, testutil.ToFloat64(evaluations.WithLabelValues(metrics.PathDirect)))
}

func TestEvaluateForeignAttachesAndDetaches(t *testing.T) {
	env := &fakeEnv{}
	b := New(env)

	require.NoError(t, b.Evaluate("1"))

	assert.Equal(t, int64(1), env.attaches.Load())
	assert.Equal(t, int64(1), env.detaches.Load())
	assert.Equal(t, env.allocs.Load(), env.releases.Load())
}

func TestEvaluateKeepsExistingAttachment(t *testing.T) {
	env := &fakeEnv{preAttached: true}
	b := New(env)

	require.NoError(t, b.Evaluate("1"))

	assert.Zero(t, env.detaches.Load())
}

func TestEvaluateSwallowsScriptErrors(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	env := &fakeEnv{}
	m := metrics.New()
	b := New(env, WithLogger(zap.New(obs)), WithMetrics(m))

	assert.NoError(t, b.Evaluate("throw"))
	assert.NoError(t, b.Evaluate("panic"))

	assert.Equal(t, int64(2), env.attaches.Load())
	assert.Equal(t, int64(2), env.detaches.Load())
	assert.Equal(t, int64(2), env.releases.Load())
	assert.Equal(t, 1, logs.FilterMessage("script raised").Len())
	assert.Equal(t, 1, logs.FilterMessage("evaluation panicked").Len())
	_, _, failures, _ := m.Collectors()
	assert.Equal(t, 2.0, testutil.ToFloat64(failures))
}

func TestEvaluatePreconditionErrors(t *testing.T) {
	err := New(&fakeEnv{failAttach: true}).Evaluate("1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attach")

	env := &fakeEnv{failAlloc: true}
	err = New(env).Evaluate("1")
	require.Error(t, err)
	assert.Equal(t, env.attaches.Load(), env.detaches.Load())
	assert.Zero(t, env.releases.Load())
}

func TestConcurrentForeignEvaluations(t *testing.T) {
	const n = 200
	env := &fakeEnv{}
	m := metrics.New()
	b := New(env, WithMetrics(m))

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		src := "ok"
		switch {
		case i%5 == 0:
			src = "panic"
		case i%3 == 0:
			src = "throw"
		}
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Evaluate(src))
		}()
	}
	wg.Wait()

	assert.Len(t, env.evaluated, n)
	assert.Equal(t, int64(n), env.attaches.Load())
	assert.Equal(t, env.attaches.Load(), env.detaches.Load())
	assert.Equal(t, env.allocs.Load(), env.releases.Load())

	_, _, _, attachments := m.Collectors()
	assert.Equal(t,
		testutil.ToFloat64(attachments.WithLabelValues(metrics.OpAttach)),
		testutil.ToFloat64(attachments.WithLabelValues(metrics.OpDetach)))
}

func TestHandles(t *testing.T) {
	b := New(&fakeEnv{})
	id := Register(b)

	got, err := Lookup(id)
	require.NoError(t, err)
	assert.Same(t, b, got)

	require.NoError(t, Unregister(id))
	_, err = Lookup(id)
	assert.ErrorIs(t, err, core.ErrBridgeNotInitialized)
	assert.ErrorIs(t, Unregister(id), core.ErrBridgeNotInitialized)
}

func TestEvaluateReturnsClosedSurface(t *testing.T) {
	m := metrics.New()
	env := &fakeEnv{}
	b := New(env, WithMetrics(m))

	assert.ErrorIs(t, b.Evaluate("gone"), core.ErrWindowClosed)
	_, _, failures, _ := m.Collectors()
	assert.Zero(t, testutil.ToFloat64(failures))
	assert.Equal(t, env.attaches.Load(), env.detaches.Load())
	assert.Equal(t, env.allocs.Load(), env.releases.Load())
}
