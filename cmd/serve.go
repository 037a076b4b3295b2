package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/remotekeys/host/internal/auth"
	"github.com/remotekeys/host/internal/broker"
	"github.com/remotekeys/host/internal/config"
	"github.com/remotekeys/host/internal/input"
	"github.com/remotekeys/host/internal/keepawake"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/mdns"
	"github.com/remotekeys/host/internal/netinfo"
	"github.com/remotekeys/host/internal/pairing"
	"github.com/remotekeys/host/internal/server"
)

var (
	serveConfigPath   string
	serveAddr         string
	serveLogLevel     string
	serveInputBackend string
	serveMdns         bool
	serveKeepAwake    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host",
	Long: `Run the host: the pairing API, the waiting screen, admin and control
panel WebSockets, and the token janitor.

Settings come from ~/.remotekeys/config.toml (or --config); flags override
the file.

Example:
  remotekeys serve
  remotekeys serve --addr 0.0.0.0:9000 --input-backend log`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config file (default ~/.remotekeys/config.toml)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default "+config.DefaultAddr+")")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveInputBackend, "input-backend", "", "Keystroke backend: xdotool or log")
	serveCmd.Flags().BoolVar(&serveMdns, "mdns", false, "Advertise the host on the LAN over mDNS")
	serveCmd.Flags().BoolVar(&serveKeepAwake, "keep-awake", false, "Keep the display awake while a phone controls the keyboard")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	cfg, err = applyServeFlags(cmd, cfg)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cmd.ErrOrStderr())

	h, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.start(); err != nil {
		return err
	}
	logger.WithField("lan", netinfo.HostPort(h.server.Addr())).Info("remotekeys host ready")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.stop(shutdownCtx)
}

// applyServeFlags overlays explicitly set flags on cfg and revalidates.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) (*config.Config, error) {
	out := *cfg
	flags := cmd.Flags()
	if flags.Changed("addr") {
		out.Addr = serveAddr
	}
	if flags.Changed("log-level") {
		out.LogLevel = serveLogLevel
	}
	if flags.Changed("input-backend") {
		out.InputBackend = serveInputBackend
	}
	if flags.Changed("mdns") {
		out.MdnsEnabled = serveMdns
	}
	if flags.Changed("keep-awake") {
		out.KeepAwake = serveKeepAwake
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// host is the assembled process: every component, wired once.
type host struct {
	cfg        *config.Config
	log        logrus.FieldLogger
	server     *server.Server
	janitor    *auth.Janitor
	advertiser *mdns.Advertiser
}

func buildHost(cfg *config.Config, logger *logrus.Logger) (*host, error) {
	backend, err := input.NewBackend(cfg.InputBackend, logger)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenStore(nil, logger)
	challenges := auth.NewChallengeStore(auth.ChallengeConfig{TTL: cfg.ChallengeTTL.Duration, Logger: logger})
	pins := auth.NewPinStore(auth.PinConfig{
		TTL:         cfg.PinTTL.Duration,
		MaxAttempts: cfg.PinMaxAttempts,
		Logger:      logger,
	})
	issuer := auth.NewTokenIssuer(tokens, auth.IssuerConfig{
		DeviceTTL:  cfg.DeviceTokenTTL.Duration,
		SessionTTL: cfg.SessionTokenTTL.Duration,
		Logger:     logger,
	})

	b := broker.New(logger)
	svc := pairing.NewService(challenges, pins, issuer, b, logger)
	controller := input.NewController(backend, input.Options{Dwell: cfg.KeyDwell.Duration, Logger: logger})

	var awake *keepawake.Manager
	if cfg.KeepAwake {
		awake = keepawake.NewManager(keepawake.NewDefaultAdapter(), keepawake.Options{Logger: logger})
	}

	srv := server.New(server.Config{
		Addr:                 cfg.Addr,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		VerifyRatePerMinute:  cfg.VerifyRatePerMinute,
		ControlRatePerSecond: cfg.ControlRatePerSecond,
		Logger:               logger,
	}, server.Deps{
		Broker:     b,
		Pairing:    svc,
		Rotator:    pairing.NewRotator(svc, b, cfg.RotationInterval.Duration, logger),
		Tokens:     tokens,
		Controller: controller,
		Guard:      netinfo.NewGuard(logger),
		KeepAwake:  awake,
	})

	h := &host{
		cfg:     cfg,
		log:     logging.Component(logger, "host"),
		server:  srv,
		janitor: auth.NewJanitor(tokens, cfg.JanitorSchedule, logger),
	}
	if cfg.MdnsEnabled {
		port, err := listenPort(cfg.Addr)
		if err != nil {
			return nil, err
		}
		h.advertiser = mdns.NewAdvertiser(mdns.Config{Port: port, Logger: logger})
	}
	return h, nil
}

func (h *host) start() error {
	if err := <-h.server.StartAsync(); err != nil {
		return err
	}
	if err := h.janitor.Start(); err != nil {
		h.server.Stop(context.Background())
		return err
	}
	if h.advertiser != nil {
		// Discovery is a convenience; the host works without it.
		if err := h.advertiser.Start(); err != nil {
			h.log.WithError(err).Warn("mdns advertisement unavailable")
		}
	}
	return nil
}

func (h *host) stop(ctx context.Context) error {
	if h.advertiser != nil {
		h.advertiser.Stop()
	}
	h.janitor.Stop()
	return h.server.Stop(ctx)
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse listen port %q: %w", portStr, err)
	}
	return port, nil
}
