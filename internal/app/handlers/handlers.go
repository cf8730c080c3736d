// Package handlers is the Observability HTTP API: read-only status/metrics
// endpoints plus a small set of operator actions (health-check, reinitialize,
// remove), all built against the core ports so they run against fakes in
// tests without a real upstream or HTTP round trip in the loop.
package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/relaymcp/meridian/internal/adapter/selector"
	"github.com/relaymcp/meridian/internal/config"
	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
	"github.com/relaymcp/meridian/internal/util"
	"github.com/relaymcp/meridian/internal/util/pattern"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeHeader = "Content-Type"
)

// Handlers wires the Observability HTTP API to the running core. clients
// and configs are mutable at runtime (DELETE /api/servers/:name removes an
// entry) so both are guarded by mu.
type Handlers struct {
	mu      sync.RWMutex
	clients map[string]ports.UpstreamClient
	configs map[string]config.UpstreamConfig

	tables     ports.RoutingTables
	metrics    ports.MetricsStore
	health     ports.HealthMonitor
	aggregator ports.Aggregator
	strategies *selector.Factory
	log        *logger.StyledLogger

	trustProxyHeaders bool
	trustedCIDRs      []*net.IPNet
}

// New builds a Handlers. clients and configs are copied into
// Handlers-owned maps so DELETE can mutate them without reaching back into
// the caller's slices.
func New(clients map[string]ports.UpstreamClient, upstreams []config.UpstreamConfig, tables ports.RoutingTables, metrics ports.MetricsStore, health ports.HealthMonitor, aggregator ports.Aggregator, strategies *selector.Factory, log *logger.StyledLogger) *Handlers {
	configs := make(map[string]config.UpstreamConfig, len(upstreams))
	for _, u := range upstreams {
		configs[u.Name] = u
	}
	clientCopy := make(map[string]ports.UpstreamClient, len(clients))
	for name, c := range clients {
		clientCopy[name] = c
	}
	return &Handlers{
		clients:    clientCopy,
		configs:    configs,
		tables:     tables,
		metrics:    metrics,
		health:     health,
		aggregator: aggregator,
		strategies: strategies,
		log:        log,
	}
}

// WithTrustedProxy configures how the access-log middleware resolves the
// client IP: trust lets X-Forwarded-For/X-Real-IP override RemoteAddr, but
// only when RemoteAddr itself falls inside cidrs. Returns h for chaining.
func (h *Handlers) WithTrustedProxy(trust bool, cidrs []*net.IPNet) *Handlers {
	h.trustProxyHeaders = trust
	h.trustedCIDRs = cidrs
	return h
}

// Register wires every Observability endpoint onto mux using Go's
// method-prefixed ServeMux patterns, each wrapped in the access-log
// middleware.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/servers/status", h.withAccessLog(h.serversStatus))
	mux.HandleFunc("GET /api/metrics", h.withAccessLog(h.metricsSnapshot))
	mux.HandleFunc("GET /api/health", h.withAccessLog(h.healthSummary))
	mux.HandleFunc("GET /api/selection/strategies", h.withAccessLog(h.selectionStrategies))
	mux.HandleFunc("GET /api/tools/status", h.withAccessLog(h.toolsStatus))
	mux.HandleFunc("GET /api/servers/{name}/details", h.withAccessLog(h.serverDetails))
	mux.HandleFunc("POST /api/servers/{name}/health-check", h.withAccessLog(h.serverHealthCheck))
	mux.HandleFunc("POST /api/servers/{name}/reinitialize-tools", h.withAccessLog(h.reinitializeTools))
	mux.HandleFunc("DELETE /api/servers/{name}", h.withAccessLog(h.removeServer))
}

// withAccessLog stamps every request with a generated request id (echoed
// back via X-Request-Id) and logs method/path/client IP/elapsed once the
// wrapped handler returns. Client IP resolution honours trustProxyHeaders
// and trustedCIDRs rather than trusting RemoteAddr's proxy headers blindly.
func (h *Handlers) withAccessLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := util.GenerateRequestID()
		clientIP := util.GetClientIP(r, h.trustProxyHeaders, h.trustedCIDRs)
		w.Header().Set("X-Request-Id", reqID)

		next(w, r)

		h.log.Info("observability api request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP,
			"elapsed", time.Since(start))
	}
}

func (h *Handlers) snapshotClients() map[string]ports.UpstreamClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]ports.UpstreamClient, len(h.clients))
	for name, c := range h.clients {
		out[name] = c
	}
	return out
}

type serverStatusEntry struct {
	Name        string   `json:"name"`
	Connected   bool     `json:"connected"`
	Healthy     bool     `json:"healthy"`
	Priority    int      `json:"priority"`
	Capabilities []string `json:"capabilities"`
	LastError   string   `json:"lastError,omitempty"`
}

// serversStatus answers GET /api/servers/status: one summary row per
// configured upstream, connection state joined against the Metrics Store's
// health bit. An optional ?capability= glob (e.g. "search*") restricts the
// rows to upstreams advertising a matching capability.
func (h *Handlers) serversStatus(w http.ResponseWriter, r *http.Request) {
	capFilter := r.URL.Query().Get("capability")

	clients := h.snapshotClients()
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]serverStatusEntry, 0, len(names))
	for _, name := range names {
		client := clients[name]
		state := client.State()
		record, _ := h.metrics.Get(name)

		h.mu.RLock()
		cfg := h.configs[name]
		h.mu.RUnlock()

		if capFilter != "" && !matchesAnyCapability(cfg.Capabilities, capFilter) {
			continue
		}

		entries = append(entries, serverStatusEntry{
			Name:         name,
			Connected:    state.IsConnected,
			Healthy:      record.IsHealthy,
			Priority:     cfg.Priority,
			Capabilities: cfg.Capabilities,
			LastError:    state.LastError,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func matchesAnyCapability(capabilities []string, glob string) bool {
	for _, c := range capabilities {
		if pattern.MatchesGlob(c, glob) {
			return true
		}
	}
	return false
}

// metricsSnapshot answers GET /api/metrics with the Metrics Store's raw
// snapshot, derived quality attached per upstream.
func (h *Handlers) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := h.metrics.Snapshot()
	type entry struct {
		domain.MetricsRecord
		Quality            domain.QualityScore `json:"quality"`
		HumanResponseTime  string              `json:"humanResponseTime"`
	}
	out := make(map[string]entry, len(snapshot))
	for name, record := range snapshot {
		out[name] = entry{
			MetricsRecord:     record,
			Quality:           domain.DeriveQuality(&record),
			HumanResponseTime: units.HumanDuration(time.Duration(record.ResponseTimeMs) * time.Millisecond),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// healthSummary answers GET /api/health with the Health Monitor's rollup.
func (h *Handlers) healthSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Summary())
}

// selectionStrategies answers GET /api/selection/strategies with every
// registered strategy name. The configured default/fallback pair is not
// included.
func (h *Handlers) selectionStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available": h.strategies.Available(),
	})
}

// toolsStatus answers GET /api/tools/status with the tool Routing Table's
// current name→upstream entries.
func (h *Handlers) toolsStatus(w http.ResponseWriter, r *http.Request) {
	names := h.tables.Names(domain.EntityTool)
	out := make(map[string]string, len(names))
	for _, name := range names {
		upstream, _ := h.tables.Lookup(domain.EntityTool, name)
		out[name] = upstream
	}
	writeJSON(w, http.StatusOK, out)
}

// serverDetails answers GET /api/servers/:name/details: config, connection
// state, and metrics joined for one upstream.
func (h *Handlers) serverDetails(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	client, ok := h.lookupClient(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upstream: "+name)
		return
	}
	record, _ := h.metrics.Get(name)

	h.mu.RLock()
	cfg := h.configs[name]
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"config":  cfg,
		"state":   client.State(),
		"metrics": record,
		"quality": domain.DeriveQuality(&record),
	})
}

// serverHealthCheck answers POST /api/servers/:name/health-check by
// synchronously triggering a health check for one upstream, outside its
// normal sweep cadence.
func (h *Handlers) serverHealthCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := h.lookupClient(name); !ok {
		writeError(w, http.StatusNotFound, "unknown upstream: "+name)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	h.health.Trigger(ctx, name)

	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"healthy": isHealthy(h.health, name),
	})
}

// reinitializeTools answers POST /api/servers/:name/reinitialize-tools by
// forcing the Aggregator's targeted-rebuild path for the tool Routing
// Table. Rebuilds are kind-scoped, not upstream-scoped, so this
// refreshes every connected upstream's tool entries, not just name's.
func (h *Handlers) reinitializeTools(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := h.lookupClient(name); !ok {
		writeError(w, http.StatusNotFound, "unknown upstream: "+name)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.aggregator.RebuildOne(ctx, domain.EntityTool, "tools/list"); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":  name,
		"tools": h.tables.Names(domain.EntityTool),
	})
}

// removeServer answers DELETE /api/servers/:name: closes the upstream's
// connection, drops it from the active client set, and removes its Metrics
// Store record. Routing entries already pointing at it are not touched;
// they stay until the next listing of their kind rebuilds the table.
func (h *Handlers) removeServer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	h.mu.Lock()
	client, ok := h.clients[name]
	if ok {
		delete(h.clients, name)
		delete(h.configs, name)
	}
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown upstream: "+name)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		h.log.WarnWithUpstream(name, "error closing upstream on removal: "+err.Error())
	}
	h.metrics.Remove(name)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) lookupClient(name string) (ports.UpstreamClient, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[name]
	return client, ok
}

func isHealthy(health ports.HealthMonitor, name string) bool {
	for _, n := range health.Healthy() {
		if n == name {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
