package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stackd-io/stackd"
)

func runServe(flags *ServeFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=stack.toml or provide as argument")
	}
	cfg, err := stackd.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	stackd.SetupLogging(cfg.Log)

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := stackd.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := stackd.ServeMetrics(cfg.Metrics.Listen); err != nil {
					fmt.Printf("Metrics server error: %v\n", err)
				}
			}()
		}
	}

	if cfg.Server == nil {
		return fmt.Errorf("server must be configured to run serve command")
	}

	sup, err := stackd.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}
	defer sup.Close()

	if !flags.NoMonitor {
		sup.StartMonitoring()
	}

	server := stackd.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup)
	fmt.Printf("Starting stackd server on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	// Managed services keep running; only the daemon itself exits.
	return server.Close()
}
