package config

import "time"

// DefaultAddr is the default listen address. The control panel connects over
// the LAN, so the host binds every interface.
const DefaultAddr = "0.0.0.0:8000"

// Input backend names.
const (
	BackendXdotool = "xdotool"
	BackendLog     = "log"
)

// Defaults returns a fully populated configuration.
func Defaults() *Config {
	return &Config{
		Addr:                 DefaultAddr,
		LogLevel:             "info",
		ChallengeTTL:         Duration{5 * time.Minute},
		PinTTL:               Duration{5 * time.Minute},
		PinMaxAttempts:       3,
		DeviceTokenTTL:       Duration{time.Hour},
		SessionTokenTTL:      Duration{time.Hour},
		RotationInterval:     Duration{300 * time.Second},
		JanitorSchedule:      "@every 1h",
		KeyDwell:             Duration{20 * time.Millisecond},
		InputBackend:         BackendXdotool,
		CORSAllowedOrigins:   []string{"*"},
		VerifyRatePerMinute:  10,
		ControlRatePerSecond: 50,
	}
}
