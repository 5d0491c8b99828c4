//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// msgpool-echo reads lines from stdin, sends them through the upstream
// channel to uppercase workers and prints the replies arriving downstream.
// With zero workers everything runs on the I/O goroutine.
//
//	echo hello | msgpool-echo -n 4 -s 20
//
// SIGINT/SIGTERM stop the demo, SIGHUP reloads the config file and
// SIGUSR1 logs the debug probes.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/control"
	"github.com/momentics/hioload-msgpool/internal/concurrency"
	"github.com/momentics/hioload-msgpool/internal/echo"
	"github.com/momentics/hioload-msgpool/internal/logutil"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/reactor"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	workers      int
	serviceMaxMs int
	maxWorkers   int
	configPath   string
	metrics      string
	logLevel     string
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("msgpool-echo", pflag.ContinueOnError)
	fs.IntVarP(&o.workers, "workers", "n", 0, "initial worker goroutines; 0 runs everything on the I/O goroutine")
	fs.IntVarP(&o.serviceMaxMs, "service-max-ms", "s", 0, "upper bound of the random per-request service time")
	fs.IntVar(&o.maxWorkers, "max-workers", 10, "cap for workers added on scale-up signals")
	fs.StringVarP(&o.configPath, "config", "c", "", "TOML configuration file")
	fs.StringVar(&o.metrics, "metrics-listen", "", "address for the Prometheus endpoint")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override")
	err := fs.Parse(args)
	return o, fs, err
}

// loadConfig reads the file, if any, and applies explicitly set flags on top.
func loadConfig(o options, fs *pflag.FlagSet) (*control.Config, error) {
	cfg := control.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = control.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if fs.Changed("workers") {
		cfg.Workers.Min = o.workers
	}
	if fs.Changed("max-workers") || o.configPath == "" {
		cfg.Workers.Max = o.maxWorkers
	}
	if cfg.Workers.Min > cfg.Workers.Max {
		cfg.Workers.Min = cfg.Workers.Max
	}
	if fs.Changed("service-max-ms") {
		cfg.Workers.ServiceMaxMs = o.serviceMaxMs
	}
	if fs.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.metrics
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

// poolConfig forces the readiness layout the I/O goroutine needs: downstream
// always, upstream only when it serves requests inline.
func poolConfig(cfg *control.Config) (msgpool.Config, error) {
	pc, err := cfg.MsgPoolConfig()
	if err != nil {
		return pc, err
	}
	inline := cfg.Workers.Min == 0
	pc.Channels[api.Downstream].Readiness = true
	pc.Channels[api.Upstream].Readiness = inline
	if inline {
		// nobody to scale
		pc.Channels[api.Upstream].Watch = nil
	}
	return pc, nil
}

func main() {
	o, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := loadConfig(o, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgpool-echo: %v\n", err)
		os.Exit(2)
	}
	log, err := logutil.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgpool-echo: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, o.configPath, log); err != nil {
		log.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *control.Config, path string, log *zap.Logger) (err error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return err
	}
	p, err := msgpool.New(pc)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, p.Close()) }()

	metrics := control.NewMetrics()
	if err := metrics.Attach(p); err != nil {
		return err
	}
	p.Subscribe(metrics)

	probes := control.NewDebugProbes()
	control.RegisterPoolProbes(probes, p)
	control.RegisterPlatformProbes(probes)

	svc := echo.NewService(p, time.Duration(cfg.Workers.ServiceMaxMs)*time.Millisecond, log.Named("worker"))

	var scaler *concurrency.Scaler
	if cfg.Workers.Min > 0 {
		scaler, err = concurrency.NewScaler(concurrency.ScalerConfig{
			Min:         cfg.Workers.Min,
			Max:         cfg.Workers.Max,
			CPUAffinity: cfg.Workers.CPUAffinity,
		}, svc.Run,
			concurrency.WithLogger(log.Named("scaler")),
			concurrency.WithWorkerHook(metrics.SetWorkers))
		if err != nil {
			return err
		}
		p.Subscribe(scaler)
		probes.RegisterProbe("workers", func() any { return scaler.NumWorkers() })
		if err := scaler.Start(); err != nil {
			return multierr.Append(err, scaler.Shutdown(context.Background()))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, scaler.Shutdown(ctx))
		}()
	}

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(cfg.Metrics.Path, metrics)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(ctx))
		}()
	}

	store := control.NewConfigStore(cfg, path)
	store.OnReload(func(c *control.Config) {
		svc.SetServiceMax(time.Duration(c.Workers.ServiceMaxMs) * time.Millisecond)
		if scaler == nil {
			return
		}
		policies, err := c.WatchPolicies()
		if err != nil {
			log.Warn("reload: watch policies", zap.Error(err))
			return
		}
		for id, pol := range policies {
			if _, err := p.RegisterWatcher(id, pol); err != nil {
				log.Warn("reload: watcher", zap.Stringer("channel", id), zap.Error(err))
			}
		}
	})

	sel, err := reactor.New()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sel.Close()) }()

	var inline *echo.Service
	if scaler == nil {
		inline = svc
	}
	fe, err := echo.NewFrontend(echo.FrontendConfig{
		Pool:     p,
		Selector: sel,
		Input:    int(os.Stdin.Fd()),
		Output:   os.Stdout,
		Inline:   inline,
		Log:      log.Named("io"),
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, fe.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel, store, probes, log)

	log.Info("started",
		zap.Int("workers", cfg.Workers.Min),
		zap.Int("max_workers", cfg.Workers.Max),
		zap.Int("service_max_ms", cfg.Workers.ServiceMaxMs))
	return fe.Run(ctx)
}

func metricsMux(path string, m *control.Metrics) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return mux
}

func handleSignals(ctx context.Context, stop context.CancelFunc, store *control.ConfigStore,
	probes *control.DebugProbes, log *zap.Logger) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sigs:
			switch s {
			case syscall.SIGHUP:
				if err := store.Reload(); err != nil {
					log.Warn("config reload failed", zap.Error(err))
				} else {
					log.Info("config reloaded", zap.String("path", store.Path()))
				}
			case syscall.SIGUSR1:
				probes.LogState(log)
			default:
				log.Info("shutting down", zap.Stringer("signal", s))
				stop()
				return
			}
		}
	}
}
