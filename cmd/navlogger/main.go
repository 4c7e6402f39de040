package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"navlogger/internal/clock"
	"navlogger/internal/config"
	"navlogger/internal/fault"
	"navlogger/internal/gnss"
	"navlogger/internal/i2c"
	"navlogger/internal/irq"
	"navlogger/internal/logging"
	"navlogger/internal/storage"
	"navlogger/internal/telemetry"
	"navlogger/internal/watchdog"
)

func main() {
	var (
		configPath string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := logging.Init(debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logging.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logging.Infof("navlogger starting device=%s mode=%s dir=%s", cfg.Device.ID, cfg.Mode.Normal, cfg.Logging.Dir)

	rt, cleanup, err := buildRuntime(ctx, cfg)
	if err != nil {
		// Initialization failures are unrecoverable in the field: signal on
		// the fault LED and stop feeding the watchdog so the board resets.
		logging.Errorf("init failed: %v", err)
		fault.SignalLoop(cfg.RTC.FaultPin)
	}
	defer cleanup()

	if err := rt.run(ctx); err != nil && ctx.Err() == nil {
		logging.Errorf("runtime failed: %v", err)
		rt.wd.Restart()
		fault.SignalLoop(cfg.RTC.FaultPin)
	}
	logging.Infof("navlogger stopping")
}

// buildRuntime brings up the hardware in dependency order. Any error here
// is fatal; the returned cleanup tears down in reverse.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*runtime, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	dev, err := openClock(cfg.RTC)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = dev.Close() })

	store, err := storage.OpenDir(cfg.Logging.Dir)
	if err != nil {
		return fail(err)
	}

	rcv := gnss.New(gnss.Config{
		Device:      cfg.GNSS.Device,
		Baud:        cfg.GNSS.Baud,
		BufferBytes: cfg.GNSS.BufferBytes,
	})
	if err := rcv.Start(ctx); err != nil {
		return fail(err)
	}
	closers = append(closers, rcv.Close)

	latch, err := irq.OpenGPIOLatch(cfg.RTC.IntPin)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = latch.Close() })

	wd, err := openWatchdog(cfg.Watchdog)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = wd.Close() })

	sink, err := openTelemetry(cfg.Telemetry)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = sink.Close() })

	rt, err := newRuntime(cfg, dev, rcv, store, latch.Latch, wd, sink)
	if err != nil {
		return fail(err)
	}
	return rt, cleanup, nil
}

func openClock(cfg config.RTCConfig) (clock.Device, error) {
	switch cfg.Source {
	case "linux":
		return clock.OpenLinuxRTC(cfg.Path)
	case "i2c":
		bus, err := i2c.Open(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		dev, err := clock.NewPCF8523(bus.Dev(cfg.Addr))
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		return dev, nil
	}
	return nil, fmt.Errorf("unknown rtc source %q", cfg.Source)
}

func openWatchdog(cfg config.WatchdogConfig) (watchdog.Watchdog, error) {
	switch cfg.Backend {
	case "linux":
		return watchdog.OpenDev(cfg.Path)
	case "gpio":
		return watchdog.OpenGPIOPet(cfg.PetPin)
	case "off":
		soft := watchdog.NewSoft(cfg.Period, cfg.MaxMissed, nil)
		soft.Start()
		return soft, nil
	}
	return nil, fmt.Errorf("unknown watchdog backend %q", cfg.Backend)
}

func openTelemetry(cfg config.TelemetryConfig) (telemetry.Sink, error) {
	var sinks telemetry.MultiSink
	if cfg.SQLitePath != "" {
		s, err := telemetry.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.UDPDest != "" {
		u, err := telemetry.NewUDPSink(cfg.UDPDest)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, u)
	}
	if len(sinks) == 0 {
		return telemetry.Discard{}, nil
	}
	return sinks, nil
}
