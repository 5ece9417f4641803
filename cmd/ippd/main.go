// Command ippd is the process entry point for the IPP printer application
// framework: it loads configuration, wires the logger/eventbus/storage/
// system/supervisor stack, and either runs in the foreground or dispatches
// to the platform service manager, following the teacher's main.go shape
// (flag parsing, then either handleServiceCommand or a direct
// runInteractive-equivalent call).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ippd/internal/config"
	"ippd/internal/eventbus"
	"ippd/internal/logger"
	"ippd/internal/storage"
	"ippd/internal/system"
)

func main() {
	configFlag := flag.String("config", "", "path to ippd.toml (default: search standard locations)")
	serviceFlag := flag.String("service", "", "service command: install, uninstall, start, stop, run")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("ippd", system.CoreVersion)
		return
	}

	if *serviceFlag != "" {
		handleServiceCommand(*serviceFlag, *configFlag)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignals(ctx, cancel)

	if err := runDaemon(ctx, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "ippd: %v\n", err)
		os.Exit(1)
	}
}

// waitForSignals implements spec.md §4.4's signal policy: SIGTERM/SIGINT
// cancel ctx (the supervisor then drains active jobs up to its grace
// period before returning); SIGHUP rotates the log file. Signal handlers
// only set flags/call simple, non-blocking operations — all real
// termination work happens in Supervisor.Run's main loop, per spec.md §7's
// propagation policy ("Signal handlers only set flags").
func waitForSignals(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if activeLogger != nil {
					activeLogger.ForceRotate()
				}
			default:
				cancel()
				return
			}
		}
	}
}

// activeLogger lets waitForSignals reach the running daemon's logger
// without threading it through the signal-handling goroutine's call chain;
// set once by runDaemon before the signal watcher can plausibly fire.
var activeLogger *logger.Logger

// runDaemon loads configuration and runs the supervisor until ctx is
// canceled. Shared by foreground-mode main() and the service wrapper's
// program.run, matching the teacher's split between an OS-agnostic
// runInteractive and the service.Interface glue in service.go.
func runDaemon(ctx context.Context, configFlag string) error {
	cfg, cfgPath, err := loadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logDir, err := config.LogDirectory(cfg)
	if err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	log := logger.New(logger.LevelFromString(cfg.LogLevel), logDir, "ippd", 1000)
	defer log.Close()
	activeLogger = log
	defer func() { activeLogger = nil }()

	log.Info("starting ippd", "config", cfgPath, "version", system.CoreVersion)

	dataDir := logDir
	if dataDir == "" {
		dataDir, err = config.SpoolDirectory(cfg)
		if err != nil {
			return fmt.Errorf("data directory: %w", err)
		}
	}

	dbPath := ""
	if dataDir != "" {
		dbPath = dataDir + "/ippd.db"
	}
	store, err := storage.Open(dbPath, log)
	if err != nil {
		log.Warn("failed to open history store, continuing without persistence", "error", err.Error())
		store = nil
	} else {
		defer store.Close()
	}

	bus := eventbus.NewHub()
	defer bus.Stop()

	sys, err := system.New(cfg, log, bus, store, builtinDriverNames())
	if err != nil {
		return fmt.Errorf("create system: %w", err)
	}
	for _, rec := range builtinDrivers() {
		if err := sys.RegisterDriver(rec); err != nil {
			log.Warn("failed to register driver", "driver", rec.Name, "error", err.Error())
		}
	}

	certFile, keyFile, err := ensureTLSCertificates(log, dataDir, cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		log.Warn("failed to provision TLS certificates, serving plain HTTP", "error", err.Error())
		certFile, keyFile = "", ""
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	sup := system.NewSupervisor(sys, log, addr)

	log.Info("listening", "addr", addr, "tls", certFile != "")
	return sup.Run(ctx, certFile, keyFile)
}

// loadConfig resolves configFlag (if set) or searches the standard
// locations via config.GetConfigSearchPaths, writing out a default file at
// the highest-priority writable path if none is found — mirroring the
// teacher's "create config on first run" behavior.
func loadConfig(configFlag string) (config.File, string, error) {
	if configFlag != "" {
		cfg, err := config.Load(configFlag)
		return cfg, configFlag, err
	}

	if path, _, err := config.FindConfigFile("ippd.toml"); err == nil {
		cfg, loadErr := config.Load(path)
		return cfg, path, loadErr
	}

	paths := config.GetConfigSearchPaths("ippd.toml")
	def := config.Default()
	for _, path := range paths {
		if err := config.WriteDefault(path, def); err == nil {
			return def, path, nil
		}
	}
	return def, "", nil
}

func builtinDriverNames() []string {
	names := make([]string, 0, len(builtinDrivers()))
	for _, d := range builtinDrivers() {
		names = append(names, d.Name)
	}
	return names
}

// builtinDrivers returns the driver records ippd ships with out of the
// box: a generic raw-passthrough driver compatible with any IPP Everywhere
// / AirPrint device speaking PDL directly, requiring no minimum core
// version bump over the driver-versioning baseline.
func builtinDrivers() []system.DriverRecord {
	return []system.DriverRecord{
		{Name: "generic", MinCoreVersion: ">=0.1.0"},
	}
}
