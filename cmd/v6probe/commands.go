package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"v6probe/internal/api"
	"v6probe/internal/config"
	"v6probe/internal/report"
	"v6probe/internal/session"
	"v6probe/internal/stunutil"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var (
		pf      probeFlags
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one measurement cycle and print the record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(pf.apply)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			rep, err := buildReporter(cfg, log, sinks{Out: cmd.OutOrStdout(), JSON: asJSON})
			if err != nil {
				return err
			}

			if timeout <= 0 {
				timeout = cycleTimeout(cfg)
			}
			ctx, cancel := withTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := session.Run(ctx, cfg, session.Deps{Reporter: rep, Logger: log})
			if err != nil {
				return err
			}
			if !res.Reported {
				fmt.Fprintln(cmd.ErrOrStderr(), "no direct target configured; nothing measured")
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	cmd.Flags().DurationVar(&timeout, "cycle-timeout", 0, "give up on the cycle after this long")
	return cmd
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		pf       probeFlags
		listen   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and measure periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(func(c *config.Config) error {
				if listen != "" {
					c.Report.Listen = listen
				}
				return pf.apply(c)
			})
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			latest := &report.Latest{}
			rep, err := buildReporter(cfg, log, sinks{Latest: latest, Metrics: reg})
			if err != nil {
				return err
			}

			run := func(ctx context.Context) (session.Result, error) {
				ctx, cancel := withTimeout(ctx, cycleTimeout(cfg))
				defer cancel()
				return session.Run(ctx, cfg, session.Deps{Reporter: rep, Logger: log})
			}

			ctx := cmd.Context()
			srv := api.NewServer(log, latest, run, reg)
			if interval > 0 {
				go srv.Schedule(ctx, interval)
			}
			return srv.ListenAndServe(ctx, cfg.Report.Listen)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "API listen address (default 127.0.0.1:9464)")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "measure this often; 0 measures only on request")
	return cmd
}

func newDiscoverCommand(opts *globalOptions) *cobra.Command {
	var (
		stunList string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover this host's public IPv6 address via STUN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(func(c *config.Config) error {
				if servers := splitList(stunList); len(servers) > 0 {
					c.STUN.Servers = servers
				}
				if cmd.Flags().Changed("stun-timeout") {
					ms, err := millis("stun-timeout", timeout)
					if err != nil {
						return err
					}
					c.STUN.TimeoutMs = ms
				}
				return nil
			})
			if err != nil {
				return err
			}
			if len(cfg.STUN.Servers) == 0 {
				return errors.New("no STUN servers configured (use --stun or stun.servers)")
			}

			m, nat, err := stunutil.ProbeIPv6(cmd.Context(), cfg.STUN.Servers, time.Duration(cfg.STUN.TimeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s  %s\n", "SERVER", m.Server)
			fmt.Fprintf(out, "%-10s  %s\n", "LOCAL", m.Local)
			fmt.Fprintf(out, "%-10s  %s\n", "MAPPED", m.Mapped)
			fmt.Fprintf(out, "%-10s  %s\n", "NAT_TYPE", nat)
			return nil
		},
	}
	cmd.Flags().StringVar(&stunList, "stun", "", "comma-separated IPv6 STUN servers")
	cmd.Flags().DurationVar(&timeout, "stun-timeout", 0, "per-server timeout (default 3s)")
	return cmd
}

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		csvPath string
		window  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarize measurements stored in the CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(func(c *config.Config) error {
				if csvPath != "" {
					c.Report.CSVPath = csvPath
				}
				return nil
			})
			if err != nil {
				return err
			}
			if cfg.Report.CSVPath == "" {
				return errors.New("csv path required (use --csv or report.csv_path)")
			}

			items, err := report.ReadCSV(cfg.Report.CSVPath)
			if err != nil {
				return err
			}
			var since time.Time
			if window > 0 {
				since = time.Now().UTC().Add(-window)
			}
			s := report.Summarize(items, since)
			out := cmd.OutOrStdout()
			if s.Count == 0 {
				fmt.Fprintln(out, "no measurements in window")
				return nil
			}

			fmt.Fprintf(out, "measurements=%d from=%s to=%s\n", s.Count, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
			fmt.Fprintf(out, "%-8s  %-8s  %-4s  %-4s  %-9s  %-9s  %-9s  %-9s\n", "SLOT", "MEASURED", "NS", "NA", "AVG_MS", "P95_MS", "MIN_MS", "MAX_MS")
			for _, row := range []struct {
				name string
				s    report.SlotSummary
			}{{"direct", s.Direct}, {"resolved", s.Resolved}} {
				fmt.Fprintf(out, "%-8s  %-8d  %-4d  %-4d  %-9.1f  %-9.1f  %-9.1f  %-9.1f\n",
					row.name, row.s.Measured, row.s.NotSupported, row.s.NotAttempted, row.s.AvgMs, row.s.P95Ms, row.s.MinMs, row.s.MaxMs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to read")
	cmd.Flags().DurationVar(&window, "window", 0, "only include measurements this recent; 0 includes all")
	return cmd
}
