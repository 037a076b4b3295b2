package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/broker"
)

// Connection timing, matching the keepalive the panels expect.
const (
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// upgrade performs the WebSocket handshake. On failure the upgrader has
// already written an HTTP error.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, role broker.Role) (*websocket.Conn, *broker.WSConn, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("role", role).Warn("websocket upgrade failed")
		return nil, nil, false
	}
	return conn, broker.NewWSConn(conn), true
}

// track registers a connection loop with Stop. It reports false once the
// server is stopping, in which case the caller must not start a loop.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns.Add(1)
	return true
}

// readLoop reads frames in arrival order until the peer goes away or
// onMessage returns false. A ping is sent every pingPeriod; a peer that
// stops answering is dropped after pongWait.
func (s *Server) readLoop(conn *websocket.Conn, wc *broker.WSConn, role broker.Role, onMessage func([]byte) bool) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pinger(wc, stopPing)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).WithField("role", role).Info("read error")
			}
			return
		}
		if !onMessage(data) {
			return
		}
	}
}

func (s *Server) pinger(wc *broker.WSConn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := wc.Ping(); err != nil {
				return
			}
		}
	}
}

// release detaches wc from role if it still holds it and closes the socket.
func (s *Server) release(role broker.Role, wc *broker.WSConn, reason string) {
	if s.deps.Broker.Holds(role, wc) {
		s.deps.Broker.Disconnect(role, reason)
		return
	}
	wc.Close(websocket.CloseNormalClosure, reason)
}

// handleWaiting serves the waiting screen. While it is attached a rotation
// loop keeps it supplied with challenges.
func (s *Server) handleWaiting(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	conn, wc, ok := s.upgrade(w, r, broker.RoleWaiting)
	if !ok {
		return
	}
	if err := s.deps.Broker.Connect(broker.RoleWaiting, wc); err != nil {
		s.log.WithError(err).Error("attach waiting screen")
		wc.Close(websocket.CloseInternalServerErr, "internal error")
		return
	}

	rotation := s.deps.Rotator.Start(s.ctx)
	defer func() {
		rotation.Stop()
		s.release(broker.RoleWaiting, wc, "waiting screen closed")
	}()

	s.readLoop(conn, wc, broker.RoleWaiting, func(data []byte) bool {
		s.log.WithField("bytes", len(data)).Debug("ignoring message from waiting screen")
		return true
	})
}

// handlePanel serves the admin observer. It only listens.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	conn, wc, ok := s.upgrade(w, r, broker.RoleAdmin)
	if !ok {
		return
	}
	if err := s.deps.Broker.Connect(broker.RoleAdmin, wc); err != nil {
		s.log.WithError(err).Error("attach admin panel")
		wc.Close(websocket.CloseInternalServerErr, "internal error")
		return
	}
	defer s.release(broker.RoleAdmin, wc, "admin panel closed")

	s.readLoop(conn, wc, broker.RoleAdmin, func(data []byte) bool {
		s.log.WithFields(logrus.Fields{"role": broker.RoleAdmin, "bytes": len(data)}).Debug("ignoring message from admin panel")
		return true
	})
}
