package config

import "time"

// TimeoutConfig holds timeout settings for the HTTP server.
// These can be configured via CLI flags.
type TimeoutConfig struct {
	// Request bounds a single page or API request, including its SQL.
	// Default: 60s
	Request time.Duration

	// Read bounds reading the request headers and body.
	// Default: 15s
	Read time.Duration

	// Idle is the keep-alive timeout between requests. Default: 120s
	Idle time.Duration

	// Shutdown is the grace period for in-flight requests. Default: 30s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Request:  60 * time.Second,
		Read:     15 * time.Second,
		Idle:     120 * time.Second,
		Shutdown: 30 * time.Second,
	}
}

// Setting keys for the stored server timeouts
const (
	SettingRequestTimeout  = "server.request_timeout"
	SettingShutdownTimeout = "server.shutdown_timeout"
)

// ApplySettings overlays the stored server timeouts, keeping the current
// values for keys that are unset or unparsable
func (c *TimeoutConfig) ApplySettings(l *Loader) {
	c.Request = l.Duration(SettingRequestTimeout, c.Request)
	c.Shutdown = l.Duration(SettingShutdownTimeout, c.Shutdown)
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
