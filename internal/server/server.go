// Package server implements the TCP front end of the speed-enforcement
// coordination service: it accepts camera and dispatcher connections,
// drives each one's protocol state machine, and routes observations and
// tickets through a shared world.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halvorsen/speedd/internal/logging"
	"github.com/halvorsen/speedd/internal/metrics"
	"github.com/halvorsen/speedd/internal/transport"
	"github.com/halvorsen/speedd/internal/world"
	"golang.org/x/time/rate"
)

// Server owns the TCP listener and coordinates client lifecycle.
type Server struct {
	mu    sync.RWMutex
	addr  string
	World *world.World

	readDeadline time.Duration
	maxClients   int
	rateLimit    rate.Limit
	rateBurst    int

	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error
	listener  net.Listener

	clientsMu sync.RWMutex
	clients   map[net.Conn]*transport.Outbox

	wg     sync.WaitGroup
	logger *slog.Logger

	nextConnID        uint64
	totalAccepted     atomic.Uint64
	totalRejected     atomic.Uint64
	totalConnected    atomic.Uint64
	totalDisconnected atomic.Uint64
}

const defaultReadDeadline = 2 * time.Minute

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// NewServer builds a Server from options. World defaults to a fresh,
// empty world.World if WithWorld is not supplied.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readDeadline: defaultReadDeadline,
		readyCh:      make(chan struct{}),
		errCh:        make(chan error, 1),
		clients:      make(map[net.Conn]*transport.Outbox),
		logger:       logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.World == nil {
		s.World = world.New()
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithWorld(w *world.World) ServerOption { return func(s *Server) { s.World = w } }

func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}

func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

// WithRateLimit enables a per-connection inbound token bucket: r messages
// per second sustained, bursting up to burst. A zero r disables the
// limiter (the default).
func WithRateLimit(r float64, burst int) ServerOption {
	return func(s *Server) {
		if r > 0 {
			s.rateLimit = rate.Limit(r)
			if burst > 0 {
				s.rateBurst = burst
			} else {
				s.rateBurst = 1
			}
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Serve accepts TCP clients and spawns reader/writer goroutines until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())

	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}

	s.totalAccepted.Add(1)
	metrics.IncConnection()

	if s.maxClients > 0 {
		s.clientsMu.RLock()
		n := len(s.clients)
		s.clientsMu.RUnlock()
		if n >= s.maxClients {
			s.totalRejected.Add(1)
			_ = conn.Close()
			return nil
		}
	}

	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := logging.WithConn(s.logger, connID, conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	out := transport.New()
	s.clientsMu.Lock()
	s.clients[conn] = out
	s.clientsMu.Unlock()
	metrics.SetActiveConnections(s.countClients())

	s.totalConnected.Add(1)
	connLogger.Info("client_connected")

	var limiter *rate.Limiter
	if s.rateLimit > 0 {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}

	sess := newSession(s.World, out)
	s.startWriter(ctx, conn, sess, connLogger)
	s.startReader(ctx, conn, sess, connLogger, limiter)

	go func() {
		<-out.Done()
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		metrics.SetActiveConnections(s.countClients())
	}()

	return nil
}

func (s *Server) countClients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Shutdown closes the listener and every open connection, then waits for
// in-flight reader/writer goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.clientsMu.Lock()
	for conn, out := range s.clients {
		out.Close()
		_ = conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
	metrics.SetActiveConnections(0)

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"rejected", s.totalRejected.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load(),
		)
		return nil
	}
}
