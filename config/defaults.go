package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost binds every interface.
	DefaultHost = "0.0.0.0"

	// DefaultPort keeps the honeypot off the privileged range; redirect
	// 22 to it with the firewall.
	DefaultPort = 2222

	// DefaultReadTimeout bounds each read and write of a session.
	DefaultReadTimeout = 30 * time.Second

	// DefaultShutdownGrace is how long shutdown waits for sessions in
	// flight.  Two timeouts covers a session stuck on its slowest step.
	DefaultShutdownGrace = 60 * time.Second

	// DefaultLogFile receives the event log next to the working directory.
	DefaultLogFile = "honeypot.log"

	// DefaultVerbose is normal operator output.
	DefaultVerbose = 1

	// DisabledLogFile turns the event log file off.
	DisabledLogFile = "-"

	// EnvPrefix prefixes every supported environment variable.
	EnvPrefix = "SSHLURE_"
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		ReadTimeout:   DefaultReadTimeout,
		ShutdownGrace: DefaultShutdownGrace,
		LogFile:       DefaultLogFile,
		Verbose:       DefaultVerbose,
	}
}
