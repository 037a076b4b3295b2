// Package mdns advertises the host on the local network over DNS-SD so a
// phone can find it without typing an address. Advertisement is opt-in and
// only reveals presence; pairing still needs a challenge or PIN.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// ServiceType is the DNS-SD service type of a remotekeys host.
const ServiceType = "_remotekeys._tcp"

// ProtocolVersion lets clients reject hosts speaking an older wire format.
const ProtocolVersion = "1"

const domain = "local."

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the HTTP port to advertise.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string

	// Logger receives advertiser events. Default: discard.
	Logger logrus.FieldLogger
}

// Advertiser manages the DNS-SD registration.
type Advertiser struct {
	config Config
	log    logrus.FieldLogger

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is announced until Start.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Advertiser{
		config: cfg,
		log:    logging.Component(cfg.Logger, "mdns"),
	}
}

// Start registers the service. Calling it while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := instanceName(a.config.Name)
	server, err := zeroconf.Register(name, ServiceType, domain, a.config.Port, txtRecords(name), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	a.server = server

	a.log.WithFields(logrus.Fields{"name": name, "port": a.config.Port}).Info("advertising host")
	return nil
}

// Stop unregisters the service. Safe to call when not running.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.log.Info("advertisement stopped")
	}
}

// IsRunning reports whether the service is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "remotekeys"
}

func txtRecords(name string) []string {
	return []string{
		"version=" + ProtocolVersion,
		"name=" + name,
	}
}

// DiscoveredHost is a host found by Discover.
type DiscoveredHost struct {
	Name    string
	Host    string
	Port    int
	Version string
}

// Addr returns host:port, bracketing IPv6 literals.
func (h DiscoveredHost) Addr() string {
	if strings.Contains(h.Host, ":") {
		return fmt.Sprintf("[%s]:%d", h.Host, h.Port)
	}
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Discover browses for hosts until ctx is done.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		wg    sync.WaitGroup
	)
	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			hosts = append(hosts, fromEntry(entry))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// zeroconf closes entries once ctx is done.
	<-ctx.Done()
	wg.Wait()
	return hosts, nil
}

func fromEntry(entry *zeroconf.ServiceEntry) DiscoveredHost {
	host := DiscoveredHost{
		Name: entry.Instance,
		Port: entry.Port,
	}
	if len(entry.AddrIPv4) > 0 {
		host.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host.Host = entry.AddrIPv6[0].String()
	}
	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			host.Version = value
		case "name":
			host.Name = value
		}
	}
	return host
}
