// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/GEEKiDoS/polaris-touch-godot/bridge"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/version"
	"github.com/GEEKiDoS/polaris-touch-godot/server"
	"github.com/GEEKiDoS/polaris-touch-godot/spiceapi"
	"github.com/GEEKiDoS/polaris-touch-godot/touch"
	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
	"github.com/GEEKiDoS/polaris-touch-godot/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the command line. Flags that were not given leave the
// loaded configuration untouched.
type options struct {
	configPath  string
	host        string
	port        uint16
	transport   string
	password    string
	listen      string
	device      string
	grab        bool
	record      string
	replay      string
	debugTouch  bool
	verbose     bool
	showVersion bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("polaris-bridge", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .yml, .json, .jsonc); default $"+config.EnvironmentVariable)
	flagSet.StringVar(&opts.host, "host", "", "SpiceAPI host")
	flagSet.Uint16Var(&opts.port, "port", 0, "SpiceAPI port")
	flagSet.StringVar(&opts.transport, "transport", "", "SpiceAPI transport: tcp or udp")
	flagSet.StringVar(&opts.password, "password", "", "SpiceAPI password")
	flagSet.StringVarP(&opts.listen, "listen", "l", "", "HTTP address for /touch, /status and /metrics")
	flagSet.StringVar(&opts.device, "device", "", "Linux multitouch device, e.g. /dev/input/event3")
	flagSet.BoolVar(&opts.grab, "grab", false, "grab the multitouch device exclusively")
	flagSet.StringVar(&opts.record, "record", "", "record touch events to this trace (.zst and .lz4 are compressed)")
	flagSet.StringVar(&opts.replay, "replay", "", "replay a recorded trace")
	flagSet.BoolVar(&opts.debugTouch, "debug-touch", false, "log active fingers on every tick")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	return flagSet
}

// loadConfig reads the configuration file, if any, and applies flags
// the user set explicitly.
func loadConfig(opts *options, flagSet *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("host") {
		cfg.SpiceAPI.Host = opts.host
	}
	if flagSet.Changed("port") {
		cfg.SpiceAPI.Port = opts.port
	}
	if flagSet.Changed("transport") {
		cfg.SpiceAPI.Transport = config.TransportKind(opts.transport)
	}
	if flagSet.Changed("password") {
		cfg.SpiceAPI.Password = opts.password
	}
	if flagSet.Changed("listen") {
		cfg.Input.Listen = opts.listen
	}
	if flagSet.Changed("device") {
		cfg.Input.EvdevDevice = opts.device
	}
	if flagSet.Changed("grab") {
		cfg.Input.GrabDevice = opts.grab
	}
	if flagSet.Changed("record") {
		cfg.Input.Record = opts.record
	}
	if flagSet.Changed("replay") {
		cfg.Input.Replay = opts.replay
	}
	if flagSet.Changed("debug-touch") {
		cfg.Controller.DebugTouch = opts.debugTouch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Input.Replay != "" && cfg.Input.EvdevDevice != "" {
		return nil, fmt.Errorf("%w: input.replay and input.evdev_device are mutually exclusive", config.ErrInvalid)
	}
	return cfg, nil
}

func run(args []string) error {
	var opts options
	flagSet := newFlagSet(&opts)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Printf("polaris-bridge %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger := newLogger(os.Stderr, opts.verbose)
	slog.SetDefault(logger)

	cfg, err := loadConfig(&opts, flagSet)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting polaris-bridge",
		"version", version.Current(),
		"spice_host", cfg.SpiceAPI.Address(),
		"transport", cfg.SpiceAPI.Transport,
		"lanes", cfg.Controller.Lanes,
	)
	return serve(ctx, cfg, logger)
}

// serve wires the components together and blocks until ctx is
// cancelled or a component fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := transport.NewMetrics(registry)

	client, err := spiceapi.Dial(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer client.Close()

	trk := tracker.New(tracker.OptionsFromConfig(cfg.Controller))
	var sink touch.Sink = trk
	if cfg.Input.Record != "" {
		recorder, err := touch.NewRecorder(cfg.Input.Record, trk, nil, logger)
		if err != nil {
			return err
		}
		defer recorder.Close()
		sink = recorder
		logger.Info("recording touch input", "trace", cfg.Input.Record)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &bridge.Bridge{
		Tracker:       trk,
		Controller:    client,
		TickInterval:  cfg.Controller.TickInterval(),
		GuardInterval: cfg.Controller.GuardInterval.Std(),
		DebugTouch:    cfg.Controller.DebugTouch,
		Logger:        logger,
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	var wg sync.WaitGroup
	failures := make(chan error, 3)
	launch := func(name string, component func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := component(ctx); err != nil && !errors.Is(err, context.Canceled) {
				failures <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	if cfg.Input.Listen != "" {
		httpServer, err := server.New(server.Config{
			Address:   cfg.Input.Listen,
			Touch:     touch.NewHandler(sink, logger),
			Bridge:    b,
			Transport: cfg.SpiceAPI.Transport,
			Gatherer:  registry,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		launch("http server", httpServer.Serve)
	}

	if cfg.Input.EvdevDevice != "" {
		device, err := touch.OpenDevice(cfg.Input.EvdevDevice, cfg.Input.GrabDevice, logger)
		if err != nil {
			return err
		}
		defer device.Close()
		launch("touch device", func(ctx context.Context) error {
			return device.Run(ctx, sink)
		})
	}

	if cfg.Input.Replay != "" {
		launch("replay", func(ctx context.Context) error {
			return touch.Replay(ctx, cfg.Input.Replay, sink, nil, logger)
		})
	}

	<-ctx.Done()
	wg.Wait()
	close(failures)

	var errs []error
	for err := range failures {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		logger.Info("shutting down")
	}
	return errors.Join(errs...)
}
