package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/remotekeys/host/internal/broker"
	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/input"
	"github.com/remotekeys/host/internal/keepawake"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/protocol"
)

var errControlRateLimited = hostErrors.New(hostErrors.CodeInputRateLimited, "too many control messages, slow down")

// extractDeviceToken reads the device token from the query string, falling
// back to an "Authorization: Bearer" header.
func extractDeviceToken(r *http.Request) string {
	if token := r.URL.Query().Get(deviceTokenQueryName); token != "" {
		return token
	}
	const bearerPrefix = "bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}
	return ""
}

// handleControlPanel serves the paired client. The device token is claimed
// once; the keyboard is bound to the session for its lifetime.
func (s *Server) handleControlPanel(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	token := extractDeviceToken(r)
	conn, wc, ok := s.upgrade(w, r, broker.RoleClient)
	if !ok {
		return
	}

	device, err := s.deps.Tokens.ClaimDeviceToken(token)
	if err != nil {
		code, msg := hostErrors.ToCodeAndMessage(err)
		s.log.WithFields(logrus.Fields{
			"error_code": code,
			"token":      logging.Redact(token),
		}).Warn("control panel rejected")
		wc.Close(websocket.ClosePolicyViolation, msg)
		return
	}
	log := s.log.WithField("device_id", device.DeviceID)

	if err := s.deps.Broker.Connect(broker.RoleClient, wc); err != nil {
		log.WithError(err).Error("attach control panel")
		wc.Close(websocket.CloseInternalServerErr, "internal error")
		return
	}

	if err := s.deps.Controller.Start(ControlOwner); err != nil {
		_, msg := hostErrors.ToCodeAndMessage(err)
		log.WithError(err).Warn("keyboard claim failed")
		s.deps.Broker.NotifyAdmin("Could not start keyboard control: " + msg)
		s.release(broker.RoleClient, wc, msg)
		return
	}
	s.deps.Broker.NotifyAdmin("Client control panel connected")
	s.holdAwake(r.Context())

	session := &controlSession{
		server: s,
		wc:     wc,
		log:    log,
		reason: "control panel closed",
	}
	if n := s.config.ControlRatePerSecond; n > 0 {
		session.limiter = rate.NewLimiter(rate.Limit(n), n)
	}

	defer func() {
		s.releaseAwake()
		s.deps.Controller.Stop()
		s.release(broker.RoleClient, wc, session.reason)
		s.deps.Broker.NotifyAdmin("Client control panel disconnected")
	}()

	s.readLoop(conn, wc, broker.RoleClient, session.handle)
}

// holdAwake is a no-op without a keep-awake manager. A degraded inhibitor
// is reported to the admin; control carries on.
func (s *Server) holdAwake(ctx context.Context) {
	if s.deps.KeepAwake == nil {
		return
	}
	if st := s.deps.KeepAwake.Hold(ctx, ControlOwner); st.State == keepawake.StateDegraded {
		s.deps.Broker.NotifyAdmin("Keep-awake unavailable: " + st.LastError)
	}
}

func (s *Server) releaseAwake() {
	if s.deps.KeepAwake != nil {
		s.deps.KeepAwake.Release(context.Background())
	}
}

// controlSession is the per-connection state of a control panel loop.
type controlSession struct {
	server  *Server
	wc      *broker.WSConn
	limiter *rate.Limiter
	log     logrus.FieldLogger

	// reason is sent with the close frame on teardown.
	reason string
}

// handle processes one control message. It returns false to end the loop.
func (c *controlSession) handle(data []byte) bool {
	msg, err := protocol.ParseControl(data)
	if err != nil {
		c.log.WithError(err).Debug("dropping invalid control message")
		return true
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return c.reply(msg, errControlRateLimited)
	}

	switch msg.MessageType {
	case protocol.ControlCommand:
		return c.reply(msg, c.press(msg))
	case protocol.ControlTyping:
		return c.reply(msg, c.typeText(msg))
	case protocol.ControlDisconnect:
		if msg.Payload != nil && msg.Payload.Message != "" {
			c.reason = msg.Payload.Message
		} else {
			c.reason = "client requested disconnect"
		}
		c.log.WithField("reason", c.reason).Info("client requested disconnect")
		return false
	case protocol.ControlStatusUpdate:
		c.log.WithField("status", msg.String()).Debug("client status update")
		return true
	default:
		return true
	}
}

func (c *controlSession) press(msg *protocol.ControlMessage) error {
	name, err := msg.Command()
	if err != nil {
		return err
	}
	return c.server.deps.Controller.Press(input.KeyName(name))
}

func (c *controlSession) typeText(msg *protocol.ControlMessage) error {
	text, err := msg.Text()
	if err != nil {
		return err
	}
	return c.server.deps.Controller.TypeText(text)
}

// reply echoes the outcome to the admin and to the client. The admin copy
// is best effort; failing to reach the client ends the loop.
func (c *controlSession) reply(msg *protocol.ControlMessage, result error) bool {
	if result != nil {
		c.log.WithError(result).WithField("message", msg.String()).Warn("control message failed")
	}

	env := protocol.NewCommandResult(msg, result)
	c.server.deps.Broker.ForwardToAdmin(env)

	if err := c.server.deps.Broker.SendEnvelope(broker.RoleClient, env); err != nil {
		c.log.WithError(err).Warn("control panel unreachable")
		return false
	}
	return true
}
