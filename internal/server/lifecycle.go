package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// StartAsync starts serving in a goroutine. The returned channel receives
// nil once the listener is bound, or the listen error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
		close(errCh)
		return errCh
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("listening")
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server error")
		}
	}()

	return errCh
}

// Stop closes every role connection, stops accepting new ones, and waits
// for connection loops to finish or ctx to expire. Calling it twice is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	s.cancel()
	s.deps.Broker.CloseAll("server shutting down")

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	wait, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	select {
	case <-done:
	case <-wait.Done():
		s.log.Warn("connection loops still running at shutdown")
	}

	s.deps.Controller.Stop()
	if s.deps.KeepAwake != nil {
		if kerr := s.deps.KeepAwake.Close(ctx); kerr != nil {
			s.log.WithError(kerr).Warn("release keep-awake")
		}
	}
	s.log.Info("server stopped")
	return err
}
