// Package config defines the runtime configuration for sshlure and the
// loaders that fill it from a YAML file and the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ncerr "sshlure/internal/errors"
)

// Config holds every tuneable of a honeypot process.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxSessions int    `yaml:"max_sessions"` // 0 = unlimited

	// ── Sessions ─────────────────────────────────────────────────────
	ReadTimeout   time.Duration `yaml:"read_timeout"`   // per read or write
	ShutdownGrace time.Duration `yaml:"shutdown_grace"` // drain budget on exit

	// ── Output ───────────────────────────────────────────────────────
	LogFile     string `yaml:"log_file"` // "-" disables the file
	JSONLog     bool   `yaml:"json"`
	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     int    `yaml:"verbose"`
}

// LogFileEnabled reports whether events should also go to a file.
func (c *Config) LogFileEnabled() bool {
	return c.LogFile != "" && c.LogFile != DisabledLogFile
}

// ParsePort accepts a decimal TCP port in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is usable.  Failures are
// *errors.ConfigError values carrying a hint for the operator.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &ncerr.ConfigError{
			Field:   "host",
			Message: "bind address is required",
			Hint:    "use -H 0.0.0.0 to listen on every interface",
		}
	}
	if strings.Contains(c.Host, "/") {
		return &ncerr.ConfigError{
			Field:   "host",
			Value:   c.Host,
			Message: "bind address must be an IP or hostname",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   "port",
			Value:   strconv.Itoa(c.Port),
			Message: "port out of range 1-65535",
			Hint:    fmt.Sprintf("the default is %d; redirect 22 to it with the firewall", DefaultPort),
		}
	}
	if c.ReadTimeout <= 0 {
		return &ncerr.ConfigError{
			Field:   "read-timeout",
			Value:   c.ReadTimeout.String(),
			Message: "timeout must be positive",
			Hint:    "without a timeout a silent peer holds its session forever",
		}
	}
	if c.ShutdownGrace < 0 {
		return &ncerr.ConfigError{
			Field:   "shutdown-grace",
			Value:   c.ShutdownGrace.String(),
			Message: "grace period cannot be negative",
		}
	}
	if c.MaxSessions < 0 {
		return &ncerr.ConfigError{
			Field:   "max-sessions",
			Value:   strconv.Itoa(c.MaxSessions),
			Message: "session limit cannot be negative",
			Hint:    "use 0 for no limit",
		}
	}
	if c.Verbose < 0 || c.Verbose > 3 {
		return &ncerr.ConfigError{
			Field:   "verbose",
			Value:   strconv.Itoa(c.Verbose),
			Message: "verbosity must be 0-3",
		}
	}
	if c.JSONLog && !c.LogFileEnabled() {
		return &ncerr.ConfigError{
			Field:   "json",
			Message: "JSON output needs a log file",
			Hint:    "set -o <path> or drop --json",
		}
	}
	return nil
}

// String renders the effective configuration for --dry-run.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listen:         %s:%d\n", c.Host, c.Port)
	fmt.Fprintf(&b, "read timeout:   %s\n", c.ReadTimeout)
	fmt.Fprintf(&b, "shutdown grace: %s\n", c.ShutdownGrace)
	if c.MaxSessions > 0 {
		fmt.Fprintf(&b, "max sessions:   %d\n", c.MaxSessions)
	} else {
		fmt.Fprintf(&b, "max sessions:   unlimited\n")
	}
	switch {
	case !c.LogFileEnabled():
		fmt.Fprintf(&b, "log file:       disabled\n")
	case c.JSONLog:
		fmt.Fprintf(&b, "log file:       %s (json)\n", c.LogFile)
	default:
		fmt.Fprintf(&b, "log file:       %s\n", c.LogFile)
	}
	if c.MetricsAddr != "" {
		fmt.Fprintf(&b, "metrics:        http://%s/metrics\n", c.MetricsAddr)
	}
	fmt.Fprintf(&b, "verbosity:      %d\n", c.Verbose)
	return b.String()
}
