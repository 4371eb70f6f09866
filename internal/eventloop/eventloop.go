package eventloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when work is submitted after shutdown.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")
)

const (
	stateAwake int32 = iota
	stateRunning
	stateTerminating
	stateTerminated
)

// minInterval is the smallest period accepted for repeating timers.
const minInterval = 10 * time.Millisecond

// timerEntry represents a pending setTimeout or setInterval callback.
// The actual callback lives on the script side; Go only tracks scheduling
// metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	cleared  bool
}

// Loop is the UI-owned execution context of a rendering surface: a single
// goroutine, locked to its OS thread, that runs submitted tasks in FIFO
// order and fires page timers between them. Every script evaluation and
// every handler that touches the page runs here.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	timers  map[int]*timerEntry
	nextID  int
	onTimer func(id int)

	state           atomic.Int32
	loopGoroutineID atomic.Uint64

	wake     chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	logger *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for recovered task panics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop. Tasks may be submitted before Run; they execute once
// the loop starts.
func New(opts ...Option) *Loop {
	l := &Loop{
		timers: make(map[int]*timerEntry),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run runs the loop on the calling goroutine and blocks until Shutdown or
// ctx cancellation. Queued tasks are drained before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if l.OnLoop() {
		return ErrReentrantRun
	}
	if !l.state.CompareAndSwap(stateAwake, stateRunning) {
		if l.state.Load() >= stateTerminating {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer l.closeDone()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(GoroutineID())
	defer l.loopGoroutineID.Store(0)

	for {
		l.fireDueTimers()

		task, stop := l.next()
		if task != nil {
			l.safeRun(task)
			continue
		}
		if stop {
			return nil
		}

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wait, ok := l.nextTimerWait(); ok {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-l.wake:
		case <-timerC:
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			l.mu.Lock()
			l.state.Store(stateTerminating)
			l.mu.Unlock()
			for task := l.pop(); task != nil; task = l.pop() {
				l.safeRun(task)
			}
			l.state.Store(stateTerminated)
			return ctx.Err()
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Submit enqueues fn for execution on the loop goroutine. It is safe to
// call from any goroutine and never runs fn on the caller, even when the
// caller is the loop itself.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.state.Load() >= stateTerminating {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.wakeup()
	return nil
}

// Call runs fn on the loop and waits for its result. On the loop goroutine
// fn runs inline. A panic in fn is returned as an error.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	if l.OnLoop() {
		return callSafe(fn)
	}
	errc := make(chan error, 1)
	if err := l.Submit(func() { errc <- callSafe(fn) }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnLoop reports whether the caller is the loop goroutine.
func (l *Loop) OnLoop() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return GoroutineID() == id
}

// Shutdown stops accepting work, lets queued tasks finish and waits for Run
// to return or ctx to expire. Called from the loop goroutine it only
// initiates shutdown.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	switch l.state.Load() {
	case stateAwake:
		l.state.Store(stateTerminated)
		l.queue = nil
		l.mu.Unlock()
		l.closeDone()
		return nil
	case stateRunning:
		l.state.Store(stateTerminating)
	}
	l.mu.Unlock()
	l.wakeup()

	if l.OnLoop() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// SetTimerHandler installs the function that fires a timer by ID. It runs
// on the loop goroutine.
func (l *Loop) SetTimerHandler(fn func(id int)) {
	l.mu.Lock()
	l.onTimer = fn
	l.mu.Unlock()
}

// RegisterTimer creates a timer entry and returns its ID.
// The callback itself stays on the page side, keyed by the ID.
func (l *Loop) RegisterTimer(delay time.Duration, isInterval bool) int {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
	}
	if isInterval {
		if delay < minInterval {
			delay = minInterval
		}
		entry.interval = delay
	}
	l.timers[id] = entry
	l.mu.Unlock()
	l.wakeup()
	return id
}

// ClearTimer cancels a timer by ID.
func (l *Loop) ClearTimer(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[id]; ok {
		t.cleared = true
		delete(l.timers, id)
	}
}

// ResetTimers drops every timer. Called when the page is replaced.
func (l *Loop) ResetTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.timers {
		t.cleared = true
	}
	l.timers = make(map[int]*timerEntry)
}

// HasPending returns true if there are queued tasks or active timers.
func (l *Loop) HasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0 || len(l.timers) > 0
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task
}

// next pops the oldest task. With the queue empty during shutdown it marks
// the loop terminated and reports stop; both checks share one lock hold so
// no accepted Submit is left behind.
func (l *Loop) next() (task func(), stop bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		task = l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return task, false
	}
	if l.state.Load() == stateTerminating {
		l.state.Store(stateTerminated)
		return nil, true
	}
	return nil, false
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// nextTimerWait returns the delay until the earliest active timer.
func (l *Loop) nextTimerWait() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var next *timerEntry
	for _, t := range l.timers {
		if t.cleared {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}
	if next == nil {
		return 0, false
	}
	wait := time.Until(next.deadline)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// fireDueTimers fires every timer due at entry, earliest first. Intervals
// rescheduled during the pass wait for the next one.
func (l *Loop) fireDueTimers() {
	now := time.Now()
	for {
		l.mu.Lock()
		var next *timerEntry
		for _, t := range l.timers {
			if t.cleared || t.deadline.After(now) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			l.mu.Unlock()
			return
		}
		if next.interval > 0 {
			next.deadline = now.Add(next.interval)
		} else {
			delete(l.timers, next.id)
		}
		id, handler := next.id, l.onTimer
		l.mu.Unlock()

		if handler != nil {
			l.safeRun(func() { handler(id) })
		}
	}
}

func (l *Loop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}

func callSafe(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventloop: task panicked: %v", r)
		}
	}()
	return fn()
}
