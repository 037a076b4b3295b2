// Package config provides TOML configuration file loading and parsing for the host.
// The configuration file lives at ~/.remotekeys/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that decodes from TOML strings such as "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the host configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the HTTP and WebSocket server.
	// Default: 0.0.0.0:8000
	Addr string `toml:"addr"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// ChallengeTTL is how long a pairing challenge stays valid.
	// Default: 5m
	ChallengeTTL Duration `toml:"challenge_ttl"`

	// PinTTL is how long a PIN stays valid.
	// Default: 5m
	PinTTL Duration `toml:"pin_ttl"`

	// PinMaxAttempts is the number of mismatches a PIN tolerates; the next one blocks it.
	// Default: 3
	PinMaxAttempts int `toml:"pin_max_attempts"`

	// DeviceTokenTTL bounds how long a device token can open the control panel.
	// Default: 1h
	DeviceTokenTTL Duration `toml:"device_token_ttl"`

	// SessionTokenTTL is the absolute lifetime of a session token.
	// Default: 1h
	SessionTokenTTL Duration `toml:"session_token_ttl"`

	// RotationInterval is how often the waiting screen gets a fresh challenge and PIN.
	// Default: 5m
	RotationInterval Duration `toml:"rotation_interval"`

	// JanitorSchedule is the cron spec for sweeping expired tokens.
	// Default: @every 1h
	JanitorSchedule string `toml:"janitor_schedule"`

	// KeyDwell is the pause between key transitions.
	// Default: 20ms
	KeyDwell Duration `toml:"key_dwell"`

	// InputBackend selects the keystroke injector: "xdotool" or "log".
	// Default: xdotool
	InputBackend string `toml:"input_backend"`

	// CORSAllowedOrigins lists origins allowed to call the HTTP API.
	// Default: ["*"]
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// Discovery only reveals presence; pairing still requires the challenge or PIN.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// KeepAwake holds an OS sleep inhibitor while a control panel owns the keyboard.
	// Default: false
	KeepAwake bool `toml:"keep_awake"`

	// VerifyRatePerMinute caps /auth/verify calls across all clients.
	// Default: 10
	VerifyRatePerMinute int `toml:"verify_rate_per_minute"`

	// ControlRatePerSecond caps control messages per control-panel connection.
	// Default: 50
	ControlRatePerSecond int `toml:"control_rate_per_second"`
}

// DefaultConfigPath returns the default config file location: ~/.remotekeys/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".remotekeys", "config.toml"), nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults filled in for every field the file leaves unset.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.remotekeys/config.toml).
//     Returns the defaults without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed or fails validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg.Merge(Defaults()), nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg.Merge(Defaults()), nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg = cfg.Merge(Defaults())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Merge returns a copy of c with zero-valued fields taken from fallback.
func (c *Config) Merge(fallback *Config) *Config {
	out := *c
	if out.Addr == "" {
		out.Addr = fallback.Addr
	}
	if out.LogLevel == "" {
		out.LogLevel = fallback.LogLevel
	}
	if out.ChallengeTTL.Duration == 0 {
		out.ChallengeTTL = fallback.ChallengeTTL
	}
	if out.PinTTL.Duration == 0 {
		out.PinTTL = fallback.PinTTL
	}
	if out.PinMaxAttempts == 0 {
		out.PinMaxAttempts = fallback.PinMaxAttempts
	}
	if out.DeviceTokenTTL.Duration == 0 {
		out.DeviceTokenTTL = fallback.DeviceTokenTTL
	}
	if out.SessionTokenTTL.Duration == 0 {
		out.SessionTokenTTL = fallback.SessionTokenTTL
	}
	if out.RotationInterval.Duration == 0 {
		out.RotationInterval = fallback.RotationInterval
	}
	if out.JanitorSchedule == "" {
		out.JanitorSchedule = fallback.JanitorSchedule
	}
	if out.KeyDwell.Duration == 0 {
		out.KeyDwell = fallback.KeyDwell
	}
	if out.InputBackend == "" {
		out.InputBackend = fallback.InputBackend
	}
	if len(out.CORSAllowedOrigins) == 0 {
		out.CORSAllowedOrigins = append([]string(nil), fallback.CORSAllowedOrigins...)
	}
	if !out.MdnsEnabled {
		out.MdnsEnabled = fallback.MdnsEnabled
	}
	if !out.KeepAwake {
		out.KeepAwake = fallback.KeepAwake
	}
	if out.VerifyRatePerMinute == 0 {
		out.VerifyRatePerMinute = fallback.VerifyRatePerMinute
	}
	if out.ControlRatePerSecond == 0 {
		out.ControlRatePerSecond = fallback.ControlRatePerSecond
	}
	return &out
}

// Validate rejects values the host cannot run with.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"challenge_ttl":     c.ChallengeTTL.Duration,
		"pin_ttl":           c.PinTTL.Duration,
		"device_token_ttl":  c.DeviceTokenTTL.Duration,
		"session_token_ttl": c.SessionTokenTTL.Duration,
		"rotation_interval": c.RotationInterval.Duration,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.KeyDwell.Duration < 0 {
		return fmt.Errorf("key_dwell must not be negative, got %s", c.KeyDwell.Duration)
	}
	if c.PinMaxAttempts < 1 {
		return fmt.Errorf("pin_max_attempts must be at least 1, got %d", c.PinMaxAttempts)
	}
	switch c.InputBackend {
	case BackendXdotool, BackendLog:
	default:
		return fmt.Errorf("unknown input_backend %q (want %q or %q)", c.InputBackend, BackendXdotool, BackendLog)
	}
	if c.VerifyRatePerMinute < 1 || c.ControlRatePerSecond < 1 {
		return fmt.Errorf("rate limits must be at least 1")
	}
	return nil
}
