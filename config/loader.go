package config

// loader.go - configuration loading from a YAML file and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. YAML config file
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── YAML file ────────────────────────────────────────────────────────

// LoadFile overlays the YAML document at path onto cfg.  Keys absent
// from the file leave cfg untouched; unknown keys are an error so typos
// do not pass silently.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := decodeYAML(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SSHLURE_ prefix.  Durations are whole
// seconds.  Boolean values accept "1", "true", "yes" (case-insensitive).

// ConfigPathFromEnv returns the config file named by SSHLURE_CONFIG.
func ConfigPathFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it after LoadFile and
// before applying CLI flags.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("PORT"); ok {
		cfg.Port = v
	}
	if v, ok := envInt("READ_TIMEOUT"); ok {
		cfg.ReadTimeout = secondsDuration(v)
	}
	if v, ok := envInt("SHUTDOWN_GRACE"); ok {
		cfg.ShutdownGrace = secondsDuration(v)
	}
	if v, ok := envInt("MAX_SESSIONS"); ok {
		cfg.MaxSessions = v
	}

	// Output
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v, ok := envBool("JSON"); ok {
		cfg.JSONLog = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, ok := envInt("VERBOSE"); ok {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + key)))
	switch v {
	case "":
		return false, false
	case "1", "true", "yes":
		return true, true
	default:
		return false, true
	}
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
