// Package app wires every routing/resilience component into one running
// proxy: Upstream Clients per configured server, the shared event bus,
// Routing Tables, Metrics Store, Health Monitor, Aggregator, selector
// Factory, Proxy Server, and the Observability HTTP API in front of all of
// it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/relaymcp/meridian/internal/adapter/aggregator"
	"github.com/relaymcp/meridian/internal/adapter/classify"
	"github.com/relaymcp/meridian/internal/adapter/health"
	"github.com/relaymcp/meridian/internal/adapter/metrics"
	"github.com/relaymcp/meridian/internal/adapter/proxy"
	"github.com/relaymcp/meridian/internal/adapter/registry"
	"github.com/relaymcp/meridian/internal/adapter/selector"
	"github.com/relaymcp/meridian/internal/adapter/transport"
	"github.com/relaymcp/meridian/internal/adapter/upstream"
	"github.com/relaymcp/meridian/internal/app/handlers"
	"github.com/relaymcp/meridian/internal/config"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
	"github.com/relaymcp/meridian/internal/util"
	"github.com/relaymcp/meridian/pkg/eventbus"
)

// Application is the fully wired proxy: the Proxy Server, its upstream
// clients, and the Observability HTTP API sharing them.
type Application struct {
	config *config.Config
	log    *logger.StyledLogger

	clients   map[string]ports.UpstreamClient
	bus       *eventbus.EventBus[ports.ConnectionEvent]
	busCancel context.CancelFunc

	tables     *registry.Tables
	metrics    *metrics.Store
	health     *health.Monitor
	aggregator *aggregator.Aggregator
	strategies *selector.Factory
	proxy      *proxy.Server

	httpServer *http.Server
	errCh      chan error
}

// New builds every component and wires them together, but does not start
// the listener, the health sweep, or connect to any upstream; Start does
// that.
func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	bus := eventbus.New[ports.ConnectionEvent]()
	busCtx, busCancel := context.WithCancel(context.Background())
	events, _ := bus.Subscribe(busCtx)
	go consumeConnectionEvents(events, log)

	clients := make(map[string]ports.UpstreamClient, len(cfg.Servers))
	for _, u := range cfg.Servers {
		t, err := buildTransport(u.Transport)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", u.Name, err)
		}
		clients[u.Name] = upstream.NewClient(u.Name, t, bus, log, u.MaxConcurrentRequests)
	}

	tables := registry.NewTables()
	metricsStore := metrics.NewStore(metrics.NewRpmLoadStrategy(), time.Duration(cfg.Monitoring.MetricsRetentionHours)*time.Hour)
	for _, u := range cfg.Servers {
		metricsStore.Initialize(u.Name)
		metricsStore.UpdateCapabilityScore(u.Name, float64(len(u.Capabilities)))
	}

	healthMonitor := health.NewMonitor(clients, metricsStore, log)
	healthMonitor.SetInterval(cfg.SelectionStrategy.HealthCheckInterval)

	agg := aggregator.New(clients, tables, healthMonitor, classify.Default, log)
	strategies := selector.NewFactory()
	proxyServer := proxy.New(clients, tables, agg, metricsStore, healthMonitor, classify.Default, log)

	trustedCIDRs, err := util.ParseTrustedCIDRs(cfg.Server.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("server.trustedProxyCIDRs: %w", err)
	}
	obs := handlers.New(clients, cfg.Servers, tables, metricsStore, healthMonitor, agg, strategies, log).
		WithTrustedProxy(cfg.Server.TrustProxyHeaders, trustedCIDRs)
	mux := http.NewServeMux()
	obs.Register(mux)
	mux.HandleFunc("GET /health", healthHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      mux,
	}

	return &Application{
		config:     cfg,
		log:        log,
		clients:    clients,
		bus:        bus,
		busCancel:  busCancel,
		tables:     tables,
		metrics:    metricsStore,
		health:     healthMonitor,
		aggregator: agg,
		strategies: strategies,
		proxy:      proxyServer,
		httpServer: httpServer,
		errCh:      make(chan error, 1),
	}, nil
}

func buildTransport(t config.TransportConfig) (ports.Transport, error) {
	switch t.Kind {
	case "stdio":
		return transport.NewStdioTransport(t.Command, t.Args, t.EnvAllowlist), nil
	case "sse":
		return transport.NewSSETransport(t.URL), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

// Start connects every upstream (best-effort; a peer that fails to connect
// stays registered but disconnected), starts the Health Monitor's sweep
// loop, and brings up the Observability HTTP API listener.
func (a *Application) Start(ctx context.Context) error {
	for name, client := range a.clients {
		if err := client.Connect(ctx); err != nil {
			a.log.WarnWithUpstream(name, "initial connect failed, will rely on health monitor: "+err.Error())
		}
	}

	a.health.Start(ctx)

	a.log.Info("starting observability API", "host", a.config.Server.Host, "port", a.config.Server.Port)

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.log.Error("server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.log.Info("started observability API", "bind", a.httpServer.Addr)
	return nil
}

// Stop shuts the HTTP listener down gracefully, stops the Health Monitor's
// sweep loop, closes every upstream connection, and stops the Metrics
// Store's retention sweep.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	a.health.Stop()
	a.metrics.Stop()
	a.busCancel()
	a.bus.Shutdown()

	for name, client := range a.clients {
		if err := client.Close(shutdownCtx); err != nil {
			a.log.WarnWithUpstream(name, "error closing upstream: "+err.Error())
		}
	}

	return firstErr
}

// consumeConnectionEvents drains the shared bus for the lifetime of the
// Application, logging every upstream connect/disconnect notification
// published by the Upstream Clients. This is the bus's one subscriber; the
// worker pool backing bus.PublishAsync is what keeps publishing off the
// hot request path.
func consumeConnectionEvents(events <-chan ports.ConnectionEvent, log *logger.StyledLogger) {
	for evt := range events {
		if evt.Closed {
			log.WarnWithUpstream(evt.Upstream, "connection closed: "+evt.Err)
			continue
		}
		log.InfoWithUpstream(evt.Upstream, "connection event", "at", evt.At)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
