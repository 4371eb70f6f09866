// Package devserver serves a page to an ordinary browser and connects it to
// the bridge over a websocket, so bindings can be exercised without a
// native surface. Pages get the preload and a socket client injected into
// their head; frames from the page are envelopes and frames to the page are
// script.
package devserver

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/assets"
	"github.com/cryguy/webbridge/internal/bridge"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/router"
	"github.com/cryguy/webbridge/internal/script"
	"github.com/cryguy/webbridge/internal/surface"
)

// IPCPath is where pages open their IPC socket.
const IPCPath = "/__ipc"

// MetricsPath serves the prometheus collectors.
const MetricsPath = "/metrics"

const (
	maxMessageBytes = 1 << 20
	writeTimeout    = 5 * time.Second
	pingInterval    = 30 * time.Second
	handoverTimeout = 5 * time.Second
)

// Config wires a Server to a bridge instance.
type Config struct {
	Addr       string
	Assets     *assets.FS
	Router     *router.Router
	Scheduler  core.Scheduler
	UserConfig core.ConfigSource
	Env        core.EnvSource
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// OriginPatterns are the extra origins allowed to open the IPC socket.
	OriginPatterns []string
}

// Server is the development HTTP server. One page at a time is attached to
// the router; a newly connected page replaces the previous one.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	mux     *chi.Mux
	preload string

	attachMu sync.Mutex
	mu       sync.Mutex
	inits    []initScript
	active   *session
	srv      *http.Server
}

type initScript struct {
	key, src string
}

// New builds the server and the script injected into every page.
func New(cfg Config) (*Server, error) {
	if cfg.Assets == nil {
		return nil, errors.New("devserver: no assets")
	}
	if cfg.Router == nil {
		return nil, errors.New("devserver: no router")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	preload, err := surface.PreloadFor(cfg.Assets.Root(), cfg.UserConfig, cfg.Env)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("devserver"),
		preload: preload,
	}
	s.mux = s.routes()
	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Get(IPCPath, s.handleIPC)
	r.Method(http.MethodGet, MetricsPath, s.cfg.Metrics.Handler())
	r.Get("/*", s.handleAsset)
	return r
}

// SetInit installs a script that runs in every served page after the
// preload, replacing the one stored under key.
func (s *Server) SetInit(key, src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.inits {
		if s.inits[i].key == key {
			s.inits[i].src = src
			return
		}
	}
	s.inits = append(s.inits, initScript{key: key, src: src})
}

// RemoveInit drops the init script stored under key.
func (s *Server) RemoveInit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits = slices.DeleteFunc(s.inits, func(i initScript) bool { return i.key == key })
}

// snippet is the markup injected into every page: the preload, the init
// scripts and the socket client.
func (s *Server) snippet() string {
	s.mu.Lock()
	scripts := make([]string, 0, len(s.inits)+2)
	scripts = append(scripts, s.preload)
	for _, i := range s.inits {
		scripts = append(scripts, i.src)
	}
	s.mu.Unlock()
	return pageSnippet(append(scripts, script.SocketClient(IPCPath))...)
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() (net.Addr, error) {
	addr := s.cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("dev server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Shutdown stops the listener and disconnects the attached page.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, active := s.srv, s.active
	s.mu.Unlock()
	if active != nil {
		active.cancel()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			s.cfg.Metrics.HTTPRequest(strconv.Itoa(code), r.Method, elapsed.Seconds())
			s.logger.Debug("request",
				zap.String("requestId", chimw.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", code),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", elapsed))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	if isPage(name) {
		s.servePage(w, r, name)
		return
	}

	brotliOK := acceptsBrotli(r)
	data, encoding, err := s.cfg.Assets.Raw(name, brotliOK)
	if err == nil && encoding == assets.EncodingBrotli && !brotliOK {
		data, err = s.cfg.Assets.Open(name)
		encoding = ""
	}
	if err != nil {
		s.assetError(w, r, name, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", assets.ContentType(name))
	h.Add("Vary", "Accept-Encoding")
	if encoding != "" {
		h.Set("Content-Encoding", encoding)
	}
	_, _ = w.Write(data)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, name string) {
	data, err := s.cfg.Assets.Open(name)
	if err != nil {
		s.assetError(w, r, name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(injectHead(data, s.snippet()))
}

func (s *Server) assetError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	s.logger.Warn("asset read failed", zap.String("path", name), zap.Error(err))
	http.Error(w, "bad request", http.StatusBadRequest)
}

// handleIPC attaches the connecting page to the router for the lifetime of
// its socket.
func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	sess := newSession(r.Context(), conn, s.cfg.Assets.Root(), s.cfg.Scheduler)
	defer close(sess.done)
	defer conn.Close(websocket.StatusNormalClosure, "")

	release, err := s.attach(sess)
	if err != nil {
		s.logger.Warn("page not attached", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "not attached")
		return
	}
	defer release()

	s.logger.Info("page attached", zap.String("remote", r.RemoteAddr))
	s.serveSession(sess)
	s.logger.Info("page detached", zap.String("remote", r.RemoteAddr))
}

// attach replaces the active session with sess and allocates its window.
// The previous window is gone before the new one takes the router.
func (s *Server) attach(sess *session) (func(), error) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	s.mu.Lock()
	prev := s.active
	s.active = sess
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		if !prev.wait(handoverTimeout) {
			s.logger.Warn("previous page did not detach in time")
		}
	}

	bridgeID := bridge.Register(bridge.New(sess,
		bridge.WithLogger(s.logger),
		bridge.WithMetrics(s.cfg.Metrics)))
	windowID, err := surface.Alloc(bridgeID, s.cfg.Router, sess, s.cfg.UserConfig, s.cfg.Env, s.logger)
	if err != nil {
		_ = bridge.Unregister(bridgeID)
		s.clearActive(sess)
		return nil, err
	}
	s.mu.Lock()
	sess.ready = true
	s.mu.Unlock()
	return func() {
		if err := surface.Dealloc(windowID); err != nil && !errors.Is(err, core.ErrWindowClosed) {
			s.logger.Warn("releasing page window", zap.Error(err))
		}
		_ = bridge.Unregister(bridgeID)
		s.clearActive(sess)
	}, nil
}

func (s *Server) clearActive(sess *session) {
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
}

type frame struct {
	typ  websocket.MessageType
	data []byte
}

// serveSession pumps inbound frames into the router until the socket or
// the session ends.
func (s *Server) serveSession(sess *session) {
	incoming := make(chan frame, 64)
	go func() {
		defer close(incoming)
		for {
			typ, data, err := sess.conn.Read(sess.ctx)
			if err != nil {
				return
			}
			select {
			case incoming <- frame{typ: typ, data: data}:
			case <-sess.ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case f, ok := <-incoming:
			if !ok {
				return
			}
			if f.typ != websocket.MessageText {
				s.logger.Debug("ignoring binary frame", zap.Int("bytes", len(f.data)))
				continue
			}
			s.cfg.Router.OnMessage(string(f.data))

		case <-ping.C:
			ctx, cancel := context.WithTimeout(sess.ctx, writeTimeout)
			err := sess.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-sess.ctx.Done():
			return
		}
	}
}

// Attached reports whether a connected page owns the router.
func (s *Server) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.ready
}

func isPage(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), assets.EncodingBrotli) {
			continue
		}
		return qvalue(params) > 0
	}
	return false
}

// qvalue returns the weight in a coding's parameters, 1 when absent and 0
// when unparsable.
func qvalue(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}
