package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface, grounded on the teacher's
// agent/service.go wrapper (ctx/cancel/done channel, Start spawns run in a
// goroutine, Stop cancels and waits with a timeout).
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
	configFlag string
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("ippd service starting")
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	if p.svcLogger != nil {
		p.svcLogger.Info("ippd service running")
	}
	runDaemon(p.ctx, p.configFlag)
	if p.svcLogger != nil {
		p.svcLogger.Info("ippd service stopping")
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("ippd service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}
	timeout := time.After(60 * time.Second)
	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("ippd service stopped gracefully")
		}
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("ippd service stop timed out")
		}
	}
	return nil
}

// serviceDataDir returns the OS-appropriate directory for service-mode
// config/state, following the teacher's per-platform layout.
func serviceDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ippd")
	case "darwin":
		return "/Library/Application Support/ippd"
	default:
		return "/var/lib/ippd"
	}
}

func getServiceConfig() *service.Config {
	return &service.Config{
		Name:             "ippd",
		DisplayName:      "IPP Printer Daemon",
		Description:      "IPP Everywhere / AirPrint printer application framework daemon.",
		WorkingDirectory: serviceDataDir(),
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
			"SendSIGKILL":       true,
			"RunAtLoad":         true,
			"KeepAlive":         true,
		},
	}
}

func setupServiceDirectories() error {
	base := serviceDataDir()
	dirs := []string{base, filepath.Join(base, "logs"), filepath.Join(base, "spool")}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func handleServiceCommand(cmd, configFlag string) {
	svcConfig := getServiceConfig()
	prg := &program{configFlag: configFlag}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ippd service installed")
	case "uninstall":
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ippd service uninstalled")
	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ippd service started")
	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ippd service stopped")
	case "run":
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "service run failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown service command %q\n", cmd)
		os.Exit(1)
	}
}
