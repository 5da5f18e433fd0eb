package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"v6probe/internal/config"
	"v6probe/internal/logging"
	"v6probe/internal/report"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	logDir     string
	logLevel   string
}

// probeFlags override the probe section of the config file.
type probeFlags struct {
	cmd       *cobra.Command
	direct    string
	resolved  string
	timeout   time.Duration
	secure    bool
	dnsServer string
	csvPath   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "v6probe",
		Short:         "Measure IPv6 reachability and latency",
		Long:          "v6probe fetches an IPv6 literal and an AAAA-only hostname and reports ipv6_latency and ipv6_lookup.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config")
	root.PersistentFlags().StringVar(&opts.logDir, "log-dir", "", "write rotating JSON logs into this directory")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug|info|warn|error")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newDiscoverCommand(opts))
	root.AddCommand(newHistoryCommand(opts))
	return root
}

func (p *probeFlags) register(cmd *cobra.Command) {
	p.cmd = cmd
	f := cmd.Flags()
	f.StringVar(&p.direct, "direct", "", "URL on an IPv6 literal host")
	f.StringVar(&p.resolved, "resolved", "", "URL on an AAAA-only hostname")
	f.DurationVar(&p.timeout, "timeout", 0, "per-fetch timeout (default 1.2s)")
	f.BoolVar(&p.secure, "secure", false, "rewrite target schemes to https")
	f.StringVar(&p.dnsServer, "dns-server", "", "resolve AAAA records against this server")
	f.StringVar(&p.csvPath, "csv", "", "append measurements to this CSV file")
}

func (p *probeFlags) apply(cfg *config.Config) error {
	if p.direct != "" {
		cfg.Probe.DirectTarget = p.direct
	}
	if p.resolved != "" {
		cfg.Probe.ResolvedTarget = p.resolved
	}
	if p.changed("timeout") {
		ms, err := millis("timeout", p.timeout)
		if err != nil {
			return err
		}
		cfg.Probe.TimeoutMs = ms
	}
	if p.changed("secure") {
		cfg.Probe.Secure = p.secure
	}
	if p.dnsServer != "" {
		cfg.Probe.DNSServer = p.dnsServer
	}
	if p.csvPath != "" {
		cfg.Report.CSVPath = p.csvPath
	}
	return nil
}

func (p *probeFlags) changed(name string) bool {
	return p.cmd != nil && p.cmd.Flags().Changed(name)
}

// millis converts a duration flag to whole milliseconds. Anything under 1ms
// would truncate to 0, which the config treats as "use the default".
func millis(flag string, d time.Duration) (int, error) {
	if d < time.Millisecond {
		return 0, fmt.Errorf("--%s must be at least 1ms, got %s", flag, d)
	}
	return int(d / time.Millisecond), nil
}

// loadConfig reads the config file if one was given, applies overrides and
// validates the result.
func (o *globalOptions) loadConfig(override func(*config.Config) error) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil && !errors.Is(err, config.ErrNoConfig) {
		return config.Config{}, err
	}
	if o.logDir != "" {
		cfg.Log.Dir = o.logDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if override != nil {
		if err := override(&cfg); err != nil {
			return config.Config{}, err
		}
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level})
}

// sinks assembles the reporters a cycle hands its record to.
type sinks struct {
	Out     io.Writer
	JSON    bool
	Latest  *report.Latest
	Metrics prometheus.Registerer
}

func buildReporter(cfg config.Config, log *zap.Logger, s sinks) (report.Multi, error) {
	multi := report.Multi{report.Log{Logger: log}}
	if s.Out != nil {
		multi = append(multi, report.Writer{W: s.Out, JSON: s.JSON})
	}
	if cfg.Report.CSVPath != "" {
		multi = append(multi, &report.CSV{Path: cfg.Report.CSVPath})
	}
	if s.Latest != nil {
		multi = append(multi, s.Latest)
	}
	if s.Metrics != nil {
		m, err := report.NewMetrics(s.Metrics)
		if err != nil {
			return nil, err
		}
		multi = append(multi, m)
	}
	return multi, nil
}

// cycleTimeout bounds one cycle: both fetches run in parallel, so the probe
// timeout plus slack for resolution is enough.
func cycleTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.Probe.TimeoutMs)*time.Millisecond + 5*time.Second
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
