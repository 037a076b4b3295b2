// Package netinfo answers two questions about the host's network: which LAN
// address a phone should dial, and whether a request came from this machine.
package netinfo

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// Loopback is returned when no LAN route exists.
const Loopback = "127.0.0.1"

// dialProbe is dialed over UDP to learn the outbound interface. No packet is sent.
var dialProbe = "8.8.8.8:80"

// LANIP returns the IPv4 address of the interface the OS would use for
// outbound traffic, or Loopback when there is none.
func LANIP() string {
	conn, err := net.Dial("udp4", dialProbe)
	if err != nil {
		return Loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}

// HostPort joins the LAN IP with the port of listenAddr.
func HostPort(listenAddr string) string {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return LANIP()
	}
	return net.JoinHostPort(LANIP(), port)
}

// Guard decides whether a request originates from the host itself.
type Guard struct {
	// interfaceAddrs lists the host's own addresses. Tests replace it.
	interfaceAddrs func() ([]net.Addr, error)
	log            logrus.FieldLogger
}

// NewGuard creates a guard over the machine's interface addresses.
func NewGuard(logger logrus.FieldLogger) *Guard {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{
		interfaceAddrs: net.InterfaceAddrs,
		log:            logging.Component(logger, "server"),
	}
}

// IsLocal reports whether r came from loopback, a unix socket, or one of
// this host's own interface addresses. Unparseable addresses are rejected.
func (g *Guard) IsLocal(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if isUnixSocketRemoteAddr(r.RemoteAddr) {
			return true
		}
		g.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("unparseable remote address")
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		g.log.WithField("host", host).Warn("unparseable remote ip")
		return false
	}
	if ip.IsLoopback() {
		return true
	}

	addrs, err := g.interfaceAddrs()
	if err != nil {
		g.log.WithError(err).Warn("listing interface addresses")
		return false
	}
	for _, a := range addrs {
		var own net.IP
		switch v := a.(type) {
		case *net.IPNet:
			own = v.IP
		case *net.IPAddr:
			own = v.IP
		}
		if own != nil && own.Equal(ip) {
			return true
		}
	}
	return false
}

func isUnixSocketRemoteAddr(remoteAddr string) bool {
	return remoteAddr == "" || strings.HasPrefix(remoteAddr, "/") || strings.HasPrefix(remoteAddr, "@")
}
