// Package health implements the periodic liveness sweep that keeps the
// Metrics Store's health bit authoritative even when an upstream's own
// transport callbacks miss a silent disconnect.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
)

// DefaultCheckInterval is the documented cadence.
const DefaultCheckInterval = 30 * time.Second

// Monitor is the ports.HealthMonitor implementation. It never reconnects or
// removes an upstream and never touches request counters; it only observes
// ConnectionState and records the result.
type Monitor struct {
	clients  map[string]ports.UpstreamClient
	metrics  ports.MetricsStore
	log      *logger.StyledLogger
	interval time.Duration

	mu     sync.RWMutex
	checks map[string]domain.HealthCheck

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor builds a Monitor over the given set of upstream clients,
// keyed by name as they appear in config.
func NewMonitor(clients map[string]ports.UpstreamClient, metrics ports.MetricsStore, log *logger.StyledLogger) *Monitor {
	return &Monitor{
		clients:  clients,
		metrics:  metrics,
		log:      log,
		interval: DefaultCheckInterval,
		checks:   make(map[string]domain.HealthCheck, len(clients)),
		stop:     make(chan struct{}),
	}
}

// SetInterval overrides the sweep cadence before Start is called; intended
// for wiring the configured selectionStrategy.healthCheckInterval value.
func (m *Monitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every upstream concurrently; one upstream's probe must
// never abort another's, so individual failures are swallowed by checkOne
// rather than propagated through the errgroup.
func (m *Monitor) checkAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for name, client := range m.clients {
		name, client := name, client
		g.Go(func() error {
			m.checkOne(gctx, name, client)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) checkOne(_ context.Context, name string, client ports.UpstreamClient) {
	start := time.Now()
	state := client.State()

	healthy := true
	errMsg := ""
	if !state.IsConnected {
		healthy = false
		errMsg = state.LastError
	} else if state.LastError != "" {
		healthy = false
		errMsg = state.LastError
	}

	check := domain.HealthCheck{
		ServerName:   name,
		IsHealthy:    healthy,
		LastCheck:    start,
		ResponseTime: time.Since(start),
		ErrorMessage: errMsg,
	}

	m.mu.Lock()
	m.checks[name] = check
	m.mu.Unlock()

	if healthy {
		m.metrics.MarkHealthy(name)
		m.log.InfoHealthStatus("health check", name, true, true)
		return
	}
	m.metrics.MarkUnhealthy(name, errMsg)
	m.log.InfoHealthStatus("health check", name, false, true, "error", errMsg)
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Trigger performs the same check-one logic synchronously, for callers
// that just demoted an upstream on a connection-class error and want the
// health bit to reflect that immediately rather than waiting for the next
// tick.
func (m *Monitor) Trigger(ctx context.Context, upstream string) {
	client, ok := m.clients[upstream]
	if !ok {
		return
	}
	m.checkOne(ctx, upstream, client)
}

func (m *Monitor) Healthy() []string {
	return m.namesWhere(func(c domain.HealthCheck) bool { return c.IsHealthy })
}

func (m *Monitor) Unhealthy() []string {
	return m.namesWhere(func(c domain.HealthCheck) bool { return !c.IsHealthy })
}

func (m *Monitor) namesWhere(pred func(domain.HealthCheck) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checks))
	for name, check := range m.checks {
		if pred(check) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *Monitor) Summary() domain.HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := domain.HealthSummary{Total: len(m.checks)}
	var totalLatency time.Duration
	for _, check := range m.checks {
		if check.IsHealthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
		totalLatency += check.ResponseTime
	}
	if summary.Total > 0 {
		summary.AvgResponseTimeMs = float64(totalLatency.Milliseconds()) / float64(summary.Total)
	}
	return summary
}

// ShouldMarkUnhealthy is a pure policy helper consumed by the Proxy Server's
// retry wrapper, not by the Monitor's own loop.
func (m *Monitor) ShouldMarkUnhealthy(_ string, consecutiveFailures int) bool {
	return consecutiveFailures >= domain.UnhealthyFailureThreshold
}

// CanRecover reports whether the last recorded check for name is stale
// enough that a fresh probe result should be allowed to matter again.
// An upstream never checked is always eligible.
func (m *Monitor) CanRecover(name string) bool {
	m.mu.RLock()
	check, ok := m.checks[name]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return time.Since(check.LastCheck) > domain.RecoveryWindow
}
