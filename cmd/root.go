// Package cmd wires up the CLI flags and dispatches to the honeypot core.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"sshlure/config"
	"sshlure/internal/core"
	"sshlure/internal/event"
	"sshlure/internal/metrics"
	"sshlure/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X sshlure/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the honeypot until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

// options holds flag values before they are layered over the file and
// environment.
type options struct {
	configPath    string
	host          string
	port          int
	readTimeout   time.Duration
	maxSessions   int
	shutdownGrace time.Duration
	logFile       string
	jsonLog       bool
	metricsAddr   string
	verbose       int
	quiet         bool

	dryRun      bool
	showVersion bool
	showHelp    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var o options
	fs := flag.NewFlagSet("sshlure", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&o.host, "host", "H", config.DefaultHost, "Address to bind")
	fs.IntVarP(&o.port, "port", "p", config.DefaultPort, "TCP port to listen on")
	fs.IntVar(&o.maxSessions, "max-sessions", 0, "Concurrent session cap (0 = unlimited)")

	// ── sessions ─────────────────────────────────────────────────
	fs.DurationVarP(&o.readTimeout, "read-timeout", "t", config.DefaultReadTimeout, "Per read/write timeout")
	fs.DurationVar(&o.shutdownGrace, "shutdown-grace", config.DefaultShutdownGrace, "How long shutdown waits for sessions")

	// ── output ───────────────────────────────────────────────────
	fs.StringVarP(&o.logFile, "log-file", "o", config.DefaultLogFile, `Event log file ("-" to disable)`)
	fs.BoolVar(&o.jsonLog, "json", false, "Write the event log as JSON lines")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "Only print errors to the console")

	// ── misc ─────────────────────────────────────────────────────
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Validate and print the configuration, then exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if o.showHelp {
		printUsage(stderr, fs)
		return nil
	}
	if o.showVersion {
		fmt.Fprintf(stdout, "sshlure %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	cfg, err := loadConfig(fs, &o)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.dryRun {
		fmt.Fprint(stdout, cfg.String())
		return nil
	}

	return serve(ctx, cfg, stderr)
}

// loadConfig layers defaults, the YAML file, the environment and the
// flags the user actually set, in that order.
func loadConfig(fs *flag.FlagSet, o *options) (*config.Config, error) {
	cfg := config.Default()

	path := o.configPath
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	config.LoadFromEnv(cfg)

	if fs.Changed("host") {
		cfg.Host = o.host
	}
	if fs.Changed("port") {
		cfg.Port = o.port
	}
	if fs.Changed("read-timeout") {
		cfg.ReadTimeout = o.readTimeout
	}
	if fs.Changed("max-sessions") {
		cfg.MaxSessions = o.maxSessions
	}
	if fs.Changed("shutdown-grace") {
		cfg.ShutdownGrace = o.shutdownGrace
	}
	if fs.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if fs.Changed("json") {
		cfg.JSONLog = o.jsonLog
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if fs.Changed("verbose") {
		cfg.Verbose = config.DefaultVerbose + o.verbose
		if cfg.Verbose > int(util.LogDebug) {
			cfg.Verbose = int(util.LogDebug)
		}
	}
	if o.quiet {
		cfg.Verbose = int(util.LogQuiet)
	}
	return cfg, nil
}

// ── run ──────────────────────────────────────────────────────────────

// serve builds the sinks, the optional metrics endpoint and the honeypot
// mode, and blocks until the mode returns.
func serve(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	logger := util.NewLogger(cfg.Verbose)
	if stderr != os.Stderr {
		logger.SetOutput(stderr)
	}

	collector := metrics.New()
	sinks := event.Multi{event.NewLogSink(logger), collector}

	if cfg.LogFileEnabled() {
		f, err := event.OpenLogFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}

		if cfg.JSONLog {
			js := event.NewJSONSink(f)
			defer js.Close()
			sinks = append(sinks, js)
		} else {
			defer f.Close()
			fileLogger := util.NewLogger(int(util.LogNormal))
			fileLogger.SetOutput(f)
			sinks = append(sinks, event.NewLogSink(fileLogger))
		}
		logger.Verbose("writing events to %s", cfg.LogFile)
	}

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	mode, err := core.Build(cfg, logger, sinks, collector)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// serveMetrics exposes the collector on addr/metrics.  The socket is
// bound before returning so a bad address fails startup.
func serveMetrics(addr string, collector *metrics.Collector, logger *util.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	logger.Verbose("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `sshlure – SSH honeypot v%s

Impersonates an SSH server, records the client banner and the
credentials attackers try, and always denies access.

Usage:
  sshlure [options]

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Environment:
  Every option can be set as SSHLURE_<NAME>, e.g. SSHLURE_PORT=2222.
  Precedence: flags > environment > config file > defaults.

Examples:
  sshlure                                      Listen on 0.0.0.0:2222
  sshlure -p 22 -o /var/log/sshlure.jsonl --json
  sshlure -c /etc/sshlure.yaml --metrics-addr 127.0.0.1:9101
`)
}
