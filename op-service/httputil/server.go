package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer wraps a http.Server, exposing its running state and bound address.
//
// The addr contains both host and port. A 0 port may be used to make the system bind to an available one.
// The server may be started, stopped and started back up.
type HTTPServer struct {
	// mu guards bringing the server online/offline, and the listener.
	mu sync.RWMutex

	// nil while offline
	listener net.Listener
	srv      *http.Server

	// used as BaseContext of the http.Server, cancelled on shutdown
	srvCancel context.CancelFunc

	config config
}

// NewHTTPServer creates an inactive HTTPServer that serves the given handler once started.
func NewHTTPServer(addr string, handler http.Handler, opts ...Option) *HTTPServer {
	cfg := config{
		listenAddr: addr,
		handler:    handler,
		timeouts:   DefaultTimeouts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &HTTPServer{config: cfg}
}

func StartHTTPServer(addr string, handler http.Handler, opts ...Option) (*HTTPServer, error) {
	out := NewHTTPServer(addr, handler, opts...)
	return out, out.Start()
}

// Start binds the listener and serves in the background, failing if the server does not come up.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("already have existing server")
	}

	srvCtx, srvCancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s.config.handler,
		ReadTimeout:       s.config.timeouts.ReadTimeout,
		ReadHeaderTimeout: s.config.timeouts.ReadHeaderTimeout,
		WriteTimeout:      s.config.timeouts.WriteTimeout,
		IdleTimeout:       s.config.timeouts.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return srvCtx
		},
	}
	for _, opt := range s.config.httpOpts {
		if err := opt(srv); err != nil {
			srvCancel()
			return fmt.Errorf("failed to apply HTTP option: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.config.listenAddr)
	if err != nil {
		srvCancel()
		return fmt.Errorf("failed to bind to address %q: %w", s.config.listenAddr, err)
	}
	s.listener = listener
	s.srv = srv
	s.srvCancel = srvCancel

	// cap of 1, to not block on non-immediate shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	standup := time.NewTimer(10 * time.Millisecond)
	defer standup.Stop()
	select {
	case err := <-errCh:
		s.cleanup()
		return fmt.Errorf("http server failed: %w", err)
	case <-standup.C:
		return nil
	}
}

func (s *HTTPServer) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv == nil
}

// Stop gracefully shuts down the server, and force-closes it if ctx is cancelled first.
// The ctx error is not returned when the force-close succeeds.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if err := s.Shutdown(ctx); err != nil {
		if errors.Is(err, ctx.Err()) {
			return s.Close()
		}
		return err
	}
	return nil
}

func (s *HTTPServer) cleanup() {
	s.srvCancel()
	s.srv = nil
	s.listener = nil
	s.srvCancel = nil
}

// Shutdown closes the listener and waits for active connections to finish.
// A later Close can force-close connections that remain after a ctx cancellation.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.takeDown(func(srv *http.Server) error { return srv.Shutdown(ctx) })
}

// Close force-closes the server, its listener, and all active connections.
func (s *HTTPServer) Close() error {
	return s.takeDown(func(srv *http.Server) error { return srv.Close() })
}

func (s *HTTPServer) takeDown(fn func(srv *http.Server) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	s.srvCancel()
	if err := fn(s.srv); err != nil {
		return err
	}
	s.cleanup()
	return nil
}

// Addr returns the address the server is listening on, or nil when offline.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPEndpoint returns the http endpoint the server is serving, or an empty string when offline.
func (s *HTTPServer) HTTPEndpoint() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String()
}
