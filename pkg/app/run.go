// Package app provides the shared entry point for the loopgate binary:
// it loads configuration, wires the component graph, and runs the process
// until a shutdown signal arrives.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/telemetry"
	"github.com/loopgate/loopgate/modules/approver/terminal"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string
}

// shutdownGrace bounds how long teardown may take once a signal arrives.
const shutdownGrace = 10 * time.Second

// Run loads configuration, starts the gateway and maintenance jobs, and
// blocks until SIGINT or SIGTERM.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceShutdown, err := telemetry.Setup(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	c, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := c.cron.Start(); err != nil {
		return fmt.Errorf("cron: %w", err)
	}

	if c.gateway != nil {
		if err := c.gateway.Start(); err != nil {
			return err
		}
	}

	if cfg.Approver.Terminal {
		approver := terminal.New(c.engine, c.bus, logger)
		go func() {
			if err := approver.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("terminal approver stopped", "error", err)
			}
		}()
		logger.Info("terminal approver enabled")
	}

	logger.Info("loopgate started",
		"version", params.Version, "tools", c.registry.Count(), "config", cfgPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if c.gateway != nil {
		if err := c.gateway.Stop(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", "error", err)
		}
	}
	if err := c.cron.Stop(shutdownCtx); err != nil {
		logger.Warn("cron shutdown", "error", err)
	}
	cancel()
	closeSources(c.sources, logger)
	closeStore(c.store, logger)
	if err := traceShutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// CheckConfig loads and validates the configuration at path, returning the
// parsed config for display.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/loopgate/loopgate.yaml →
// ~/.config/loopgate/loopgate.yaml → ./loopgate.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "loopgate", "loopgate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "loopgate", "loopgate.yaml"))
	}

	candidates = append(candidates, "loopgate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
