// Package gateway exposes the HTTP surface: chat turn initiation, approval
// decisions, the live event feed, and an authenticated admin area.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/engine"
	"github.com/loopgate/loopgate/internal/event"
)

// TurnRunner runs chat turns and records approval decisions. Satisfied by
// *engine.Engine; narrowed to an interface so handlers are testable.
type TurnRunner interface {
	Turn(ctx context.Context, sessionID, message string, opts engine.TurnOptions) (engine.TurnResult, error)
	ResolveApproval(sessionID, approvalID string, decision convo.Decision, feedback string) error
}

// Params assembles a Gateway. Runner and Store are required; Bus enables
// the pending-approval fast path and the event feed, Gatherer enables
// GET /metrics.
type Params struct {
	Config   Config
	Runner   TurnRunner
	Store    convo.Store
	Bus      *event.Bus
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// ModelName is reported on the admin status endpoint.
	ModelName string
}

// Gateway is the HTTP server.
type Gateway struct {
	config    Config
	runner    TurnRunner
	store     convo.Store
	bus       *event.Bus
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	modelName string

	turns     *tracker
	server    *http.Server
	startedAt time.Time
}

// New creates a Gateway.
func New(p Params) *Gateway {
	p.Config.defaults()
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Gateway{
		config:    p.Config,
		runner:    p.Runner,
		store:     p.Store,
		bus:       p.Bus,
		gatherer:  p.Gatherer,
		logger:    p.Logger,
		modelName: p.ModelName,
		turns:     newTracker(p.Runner, p.Bus),
	}
}

// Start validates the bind address and begins serving in the background.
func (g *Gateway) Start() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully with the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
