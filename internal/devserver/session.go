package devserver

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/core"
)

// session is one browser page connected over the IPC socket. It is the
// native surface of the window allocated for that page: evaluating script
// sends it to the page as a text frame.
type session struct {
	conn  *websocket.Conn
	root  string
	sched core.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	attached int

	// ready is guarded by the server's mutex.
	ready bool
}

// socketHandle writes frames; websocket writes are safe from any goroutine.
type socketHandle struct {
	s *session
}

var (
	_ core.NativeSurface = (*session)(nil)
	_ bridge.Environment = (*session)(nil)
	_ bridge.Handle      = socketHandle{}
)

func newSession(ctx context.Context, conn *websocket.Conn, root string, sched core.Scheduler) *session {
	ctx, cancel := context.WithCancel(ctx)
	return &session{
		conn:   conn,
		root:   root,
		sched:  sched,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *session) RootDirectory() string {
	return s.root
}

func (s *session) EvaluateScript(src string) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, []byte(src))
}

// Release ends the session; the connection handler closes the socket.
func (s *session) Release() error {
	s.cancel()
	return nil
}

func (s *session) OnOwner() bool {
	return s.sched != nil && s.sched.OnLoop()
}

func (s *session) Owner() bridge.Handle {
	return socketHandle{s}
}

func (s *session) Attach() (bridge.Handle, bool, error) {
	s.mu.Lock()
	s.attached++
	s.mu.Unlock()
	return socketHandle{s}, true, nil
}

func (s *session) Detach() error {
	s.mu.Lock()
	s.attached--
	s.mu.Unlock()
	return nil
}

// wait blocks until the session's handler has cleaned up, or d elapses.
func (s *session) wait(d time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (h socketHandle) NewString(src string) (bridge.StringRef, error) {
	return src, nil
}

func (h socketHandle) Evaluate(ref bridge.StringRef) error {
	return h.s.EvaluateScript(ref.(string))
}

func (h socketHandle) ReleaseString(bridge.StringRef) {}
