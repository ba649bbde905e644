package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopgate/loopgate/internal/config"
	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/cron"
	"github.com/loopgate/loopgate/internal/engine"
	"github.com/loopgate/loopgate/internal/event"
	"github.com/loopgate/loopgate/internal/gate"
	"github.com/loopgate/loopgate/internal/gateway"
	"github.com/loopgate/loopgate/internal/metrics"
	"github.com/loopgate/loopgate/internal/session"
	"github.com/loopgate/loopgate/internal/tool"
	"github.com/loopgate/loopgate/modules/provider/openai"
	"github.com/loopgate/loopgate/modules/store/sqlite"
	mcptool "github.com/loopgate/loopgate/modules/tool/mcp"
)

// components is the assembled object graph for one process.
type components struct {
	store    convo.Store
	registry *tool.Registry
	bus      *event.Bus
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	engine   *engine.Engine
	gateway  *gateway.Gateway
	cron     *cron.Scheduler
	sources  []*mcptool.Source
	logger   *slog.Logger
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildStore constructs the configured conversation store.
func buildStore(cfg config.StoreConfig) (convo.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return convo.NewMemStore(), nil
	case "sqlite":
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// connectMCP launches each configured MCP server and registers its tools.
// It returns the connected sources and the names of tools to gate.
func connectMCP(
	ctx context.Context,
	servers []config.MCPServerConfig,
	registry *tool.Registry,
	logger *slog.Logger,
) ([]*mcptool.Source, []string, error) {
	var sources []*mcptool.Source
	var gated []string

	for _, sc := range servers {
		src, err := mcptool.Connect(ctx, mcptool.ServerConfig{
			Name:    sc.Name,
			Command: sc.Command,
			Args:    sc.Args,
			Env:     sc.Env,
		}, logger)
		if err != nil {
			closeSources(sources, logger)
			return nil, nil, err
		}
		sources = append(sources, src)

		defs, err := src.Tools(ctx)
		if err != nil {
			closeSources(sources, logger)
			return nil, nil, err
		}
		for _, def := range defs {
			if err := registry.Register(def); err != nil {
				closeSources(sources, logger)
				return nil, nil, fmt.Errorf("register tool %s from %s: %w", def.Name, sc.Name, err)
			}
			if sc.Gated {
				gated = append(gated, def.Name)
			}
		}
		logger.Info("mcp tools registered", "server", sc.Name, "tools", len(defs))
	}
	return sources, gated, nil
}

func closeSources(sources []*mcptool.Source, logger *slog.Logger) {
	for _, src := range sources {
		if err := src.Close(); err != nil {
			logger.Warn("closing mcp server", "error", err)
		}
	}
}

// wire builds the full component graph from a validated config.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	store, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	registry := tool.NewRegistry()
	sources, mcpGated, err := connectMCP(ctx, cfg.MCP, registry, logger)
	if err != nil {
		closeStore(store, logger)
		return nil, fmt.Errorf("mcp: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	bus := event.NewBus()

	g := gate.New(gate.Config{
		Store:        store,
		Registry:     registry,
		GatedTools:   append(append([]string(nil), cfg.Approval.GatedTools...), mcpGated...),
		PollInterval: cfg.Approval.PollInterval,
		Timeout:      cfg.Approval.Timeout,
		Bus:          bus,
		Metrics:      m,
		Logger:       logger,
	})

	caller, err := openai.New(openai.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		closeSources(sources, logger)
		closeStore(store, logger)
		return nil, fmt.Errorf("provider: %w", err)
	}

	eng := engine.New(engine.Params{
		Caller:   caller,
		Registry: registry,
		Gate:     g,
		Store:    store,
		Sessions: session.NewManager(),
		Config: engine.Config{
			SystemPrompt:  cfg.Engine.SystemPrompt,
			Temperature:   cfg.Engine.Temperature,
			MaxTokens:     cfg.Engine.MaxTokens,
			TurnTimeout:   cfg.Engine.TurnTimeout,
			HistoryWindow: cfg.Engine.HistoryWindow,
		},
		Bus:     bus,
		Metrics: m,
		Logger:  logger,
	})

	c := &components{
		store:    store,
		registry: registry,
		bus:      bus,
		metrics:  m,
		gatherer: promReg,
		engine:   eng,
		sources:  sources,
		logger:   logger,
	}

	if cfg.Gateway.Listen != "" {
		c.gateway = gateway.New(gateway.Params{
			Config: gateway.Config{
				Bind:            cfg.Gateway.Listen,
				ReadTimeout:     cfg.Gateway.ReadTimeout,
				WriteTimeout:    cfg.Gateway.WriteTimeout,
				ShutdownTimeout: cfg.Gateway.ShutdownTimeout,
				WaitTimeout:     cfg.Gateway.WaitTimeout,
				Auth: gateway.AuthConfig{
					BearerToken: bearerToken(cfg.Gateway.Auth),
					BasicUser:   basicUser(cfg.Gateway.Auth),
					BasicPass:   basicPass(cfg.Gateway.Auth),
				},
			},
			Runner:    eng,
			Store:     store,
			Bus:       bus,
			Gatherer:  promReg,
			Logger:    logger,
			ModelName: caller.ModelName(),
		})
	}

	c.cron = buildCron(cfg, store, m, logger)
	return c, nil
}

// buildCron registers the maintenance jobs that apply to this config.
func buildCron(
	cfg *config.Config,
	store convo.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *cron.Scheduler {
	s := cron.NewScheduler(logger)

	maxAge := cfg.Cron.MaxPendingAge
	if maxAge <= 0 {
		// Back up the gate's own deadline with a little slack.
		maxAge = cfg.Approval.Timeout
		if maxAge <= 0 {
			maxAge = gate.DefaultTimeout
		}
		maxAge += 5 * time.Minute
	}
	sweep := &cron.ApprovalSweepJob{
		Store:        store,
		MaxAge:       maxAge,
		Logger:       logger,
		Metrics:      m,
		ScheduleExpr: cfg.Cron.SweepSchedule,
	}
	if err := s.RegisterJob(sweep); err != nil {
		logger.Error("registering approval sweep", "error", err)
	}

	if cfg.Cron.RetentionDays > 0 {
		retention := &cron.SessionRetentionJob{
			Store:   store,
			MaxIdle: time.Duration(cfg.Cron.RetentionDays) * 24 * time.Hour,
			Logger:  logger,
		}
		if err := s.RegisterJob(retention); err != nil {
			logger.Error("registering session retention", "error", err)
		}
	}
	return s
}

func closeStore(store convo.Store, logger *slog.Logger) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}
}

func bearerToken(a config.AuthConfig) string {
	if a.Mode == "bearer" {
		return a.Token
	}
	return ""
}

func basicUser(a config.AuthConfig) string {
	if a.Mode == "basic" {
		return a.Username
	}
	return ""
}

func basicPass(a config.AuthConfig) string {
	if a.Mode == "basic" {
		return a.Password
	}
	return ""
}
