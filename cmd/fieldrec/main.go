// cmd/fieldrec/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tamzrod/fieldrec/internal/catalog"
	"github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/display"
	"github.com/tamzrod/fieldrec/internal/emitter"
	"github.com/tamzrod/fieldrec/internal/pins"
	"github.com/tamzrod/fieldrec/internal/retention"
	"github.com/tamzrod/fieldrec/internal/unit"
)

// version is stamped by the build.
var version = "dev"

func main() {
	var (
		cfgPath   = flag.String("config", "fieldrec.yaml", "path to the configuration file")
		logLevel  = flag.String("log-level", "info", "debug, info, warn or error")
		sweepOnce = flag.Bool("sweep", false, "run one retention sweep and exit")
		showVer   = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("fieldrec", version)
		return
	}

	log := newLogger(*logLevel)
	slog.SetDefault(log)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("config load failed", "path", *cfgPath, "error", err)
		os.Exit(1)
	}

	if *sweepOnce {
		if err := runSweep(cfg, log); err != nil {
			log.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *cfgPath, log); err != nil {
		log.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, cfgPath string, log *slog.Logger) error {
	f := cfg.Fieldrec
	log.Info("fieldrec starting",
		"version", version,
		"revision", cfg.Revision,
		"units", len(f.Units),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --------------------
	// Shared services
	// --------------------

	bus := display.NewBus(time.Duration(f.Display.FrameIntervalMs)*time.Millisecond, log)
	defer bus.Close()

	var cat *catalog.Catalog
	if f.Catalog.Path != "" {
		var err error
		cat, err = catalog.Open(f.Catalog.Path, log)
		if err != nil {
			return err
		}
		defer cat.Close()
	}

	if f.Retention.Enabled {
		sweeper, err := retention.New(retention.Config{
			Root:     f.Recording.Root,
			KeepDays: f.Retention.KeepDays,
			Schedule: f.Retention.Schedule,
		}, log)
		if err != nil {
			return err
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	if f.MQTT.Enabled {
		em, err := emitter.New(f.MQTT, log)
		if err != nil {
			return err
		}
		if err := em.Connect(); err != nil {
			// Auto-reconnect keeps dialing; events flow once it lands.
			log.Warn("mqtt connect failed, retrying in background", "error", err)
		}
		events := make(chan display.Event, 256)
		if err := bus.Subscribe("mqtt", events); err != nil {
			return err
		}
		go em.Run(ctx, events)
		defer em.Disconnect()
	}

	// --------------------
	// Per-unit workers
	// --------------------

	deps := unit.Deps{
		Recording: f.Recording,
		Bus:       bus,
		Catalog:   cat,
		Pins:      pins.NewLogDriver(log),
		Log:       log,
	}
	units := make([]*unit.Unit, 0, len(f.Units))
	for _, uc := range f.Units {
		n, err := unit.Build(uc, deps)
		if err != nil {
			return fmt.Errorf("unit %s: %w", uc.ID, err)
		}
		units = append(units, n)
	}
	defer func() {
		// Units first, so recorders finalize before the catalog closes.
		for _, n := range units {
			n.Stop()
		}
	}()
	for _, n := range units {
		if err := n.Start(ctx); err != nil {
			return fmt.Errorf("unit %s start: %w", n.ID(), err)
		}
	}
	log.Info("all units running", "count", len(units))

	// --------------------
	// Signal loop
	// --------------------

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigs)

	for {
		sig := <-sigs
		switch sig {
		case syscall.SIGHUP:
			applyReload(cfgPath, units, log)
		case syscall.SIGUSR1:
			restartStreams(units, log)
		default:
			log.Info("shutting down", "signal", sig.String())
			return nil
		}
	}
}

// applyReload re-reads the file and reconfigures the running units.
// A broken file never takes down the daemon.
func applyReload(path string, units []*unit.Unit, log *slog.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Error("reload failed, keeping the running config", "error", err)
		return
	}
	log.Info("config reloaded", "revision", cfg.Revision)

	byID := make(map[string]config.UnitConfig, len(cfg.Fieldrec.Units))
	for _, uc := range cfg.Fieldrec.Units {
		byID[uc.ID] = uc
	}
	for _, n := range units {
		uc, ok := byID[n.ID()]
		if !ok {
			log.Warn("unit missing from reloaded config, keeping it as is", "unit", n.ID())
			continue
		}
		if err := n.Reconfigure(uc); err != nil {
			log.Error("unit reconfigure failed", "unit", n.ID(), "error", err)
		}
	}
	if len(byID) > len(units) {
		log.Warn("new units in the config require a daemon restart")
	}
}

// restartStreams relaunches every unit's ingest worker, the recovery
// path after a permanently failed stream.
func restartStreams(units []*unit.Unit, log *slog.Logger) {
	log.Info("restarting stream workers on operator signal")
	for _, n := range units {
		if err := n.RestartStream(); err != nil {
			log.Warn("stream restart skipped", "unit", n.ID(), "error", err)
		}
	}
}

func runSweep(cfg *config.Config, log *slog.Logger) error {
	f := cfg.Fieldrec
	s, err := retention.New(retention.Config{
		Root:     f.Recording.Root,
		KeepDays: f.Retention.KeepDays,
		Schedule: f.Retention.Schedule,
	}, log)
	if err != nil {
		return err
	}
	_, _, err = s.Sweep(time.Now())
	return err
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
