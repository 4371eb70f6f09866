package quickjs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(WithMemoryLimit(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestEval(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, rt.Eval("globalThis.x = 40 + 2;"))
	got, err := rt.EvalString("String(globalThis.x)")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	ok, err := rt.EvalBool("globalThis.x === 42")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rt.EvalBool("'not a bool'")
	assert.Error(t, err)
}

func TestEvalError(t *testing.T) {
	rt := newTestRuntime(t)
	assert.Error(t, rt.Eval("throw new Error('boom')"))
	assert.Error(t, rt.Eval("function ("))
}

func TestRegisterFunc(t *testing.T) {
	rt := newTestRuntime(t)

	var posted []string
	require.NoError(t, rt.RegisterFunc("post", func(msg string) {
		posted = append(posted, msg)
	}))
	require.NoError(t, rt.RegisterFunc("upper", func(s string) (string, error) {
		if s == "" {
			return "", errors.New("empty")
		}
		return s + "!", nil
	}))

	require.NoError(t, rt.Eval("post('hello')"))
	assert.Equal(t, []string{"hello"}, posted)

	got, err := rt.EvalString("upper('hi')")
	require.NoError(t, err)
	assert.Equal(t, "hi!", got)

	ok, err := rt.EvalBool(`(function() {
		try { upper(''); return false; } catch (e) { return e instanceof TypeError; }
	})()`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetGlobal(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.SetGlobal("greeting", "hello"))

	got, err := rt.EvalString("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestRunMicrotasks(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, rt.Eval("globalThis.done = false; Promise.resolve().then(() => { globalThis.done = true; });"))
	ok, err := rt.EvalBool("globalThis.done")
	require.NoError(t, err)
	assert.False(t, ok)

	rt.RunMicrotasks()
	ok, err = rt.EvalBool("globalThis.done")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFactory(t *testing.T) {
	rt, err := Factory()()
	require.NoError(t, err)
	require.NoError(t, rt.Eval("1"))
	assert.NoError(t, rt.Close())
}

func TestDrainJobsCountsChains(t *testing.T) {
	rt := newTestRuntime(t)

	assert.Zero(t, drainJobs(rt.vm))
	require.NoError(t, rt.Eval("globalThis.steps = 0; Promise.resolve().then(() => steps++).then(() => steps++);"))
	assert.Equal(t, 2, drainJobs(rt.vm))

	got, err := rt.EvalString("String(steps)")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestHandleOfNil(t *testing.T) {
	_, ok := handleOf(nil)
	assert.False(t, ok)
}
