package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
	"github.com/relaymcp/meridian/internal/util"
	"github.com/relaymcp/meridian/pkg/eventbus"
)

// Client owns one Transport and the connection state for a single
// configured upstream. Connect retries ConnectAttempts times,
// spaced ConnectBackoff apart; after a transport-reported close it
// transitions to disconnected and does not reconnect on its own. Request
// failures leave the state unchanged; callers classify them and may demote
// the client through SetState.
type Client struct {
	transport ports.Transport
	bus       *eventbus.EventBus[ports.ConnectionEvent]
	log       *logger.StyledLogger
	admission *rate.Limiter
	name      string

	mu    sync.RWMutex
	state domain.ConnectionState
}

// NewClient builds a Client for the named upstream over the given transport.
// The bus is shared across all clients so a single subscriber (the app
// layer) can watch every upstream's lifecycle at once.
// maxConcurrent sizes a token-bucket admission gate: up to maxConcurrent
// requests at once, refilled at maxConcurrent tokens per second; requests
// beyond it wait for a token. The gate does not count in-flight requests.
// A non-positive value disables the gate.
func NewClient(name string, transport ports.Transport, bus *eventbus.EventBus[ports.ConnectionEvent], log *logger.StyledLogger, maxConcurrent int) *Client {
	var limiter *rate.Limiter
	if maxConcurrent > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent)
	}
	return &Client{
		name:      name,
		transport: transport,
		bus:       bus,
		log:       log,
		admission: limiter,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Connect tries ConnectAttempts times, ConnectBackoff apart, then wires the
// transport's own event channel into onerror/onclose handling for the
// remainder of the connection's life.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= domain.ConnectAttempts; attempt++ {
		if err := c.transport.Connect(ctx); err != nil {
			lastErr = err
			c.log.WarnWithUpstream(c.name, fmt.Sprintf("connect attempt %d/%d failed: %v", attempt, domain.ConnectAttempts, err))
			if attempt < domain.ConnectAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(domain.ConnectBackoff):
				}
			}
			continue
		}

		c.setConnected(true, "")
		go c.watchEvents()
		c.log.InfoWithUpstream(c.name, "connected")
		return nil
	}

	c.setConnected(false, lastErr.Error())
	return domain.NewUpstreamError("connect", c.name, lastErr)
}

// watchEvents forwards the transport's own notifications (unexpected
// process exit, SSE stream closure) into this client's state and onto the
// shared bus, so the app layer's subscriber can react without polling.
func (c *Client) watchEvents() {
	events := c.transport.Events()
	if events == nil {
		return
	}
	for evt := range events {
		evt.Upstream = c.name
		if evt.Closed {
			c.setConnected(false, evt.Err)
			c.log.WarnWithUpstream(c.name, fmt.Sprintf("connection closed: %s", evt.Err))
		}
		if c.bus != nil {
			c.bus.PublishAsync(evt)
		}
	}
}

func (c *Client) setConnected(connected bool, lastErr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasConnected := c.state.IsConnected
	c.state.IsConnected = connected
	if lastErr != "" {
		c.state.LastError = lastErr
	}
	if connected {
		c.state.ErrorLogged = false
	}
	_ = wasConnected
}

func (c *Client) Close(ctx context.Context) error {
	c.setConnected(false, "closed")
	return c.transport.Close(ctx)
}

// Request proxies a single call through the underlying transport. Callers
// (the Proxy Server's retry wrapper) are responsible for classifying any
// returned error and deciding whether to retry or demote.
func (c *Client) Request(ctx context.Context, method string, params map[string]any) (ports.RPCResult, error) {
	c.mu.RLock()
	connected := c.state.IsConnected
	c.mu.RUnlock()
	if !connected {
		return ports.RPCResult{}, domain.NewUpstreamError(method, c.name, fmt.Errorf("upstream not connected"))
	}

	if c.admission != nil {
		if err := c.admission.Wait(ctx); err != nil {
			return ports.RPCResult{}, domain.NewUpstreamError(method, c.name, err)
		}
	}

	result, err := c.transport.Request(ctx, method, params)
	if err != nil {
		return ports.RPCResult{}, domain.NewUpstreamError(method, c.name, err)
	}
	return result, nil
}

func (c *Client) State() domain.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) SetState(s domain.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// ReconnectBackoff reports how long to wait before attempting another
// connect after consecutiveFailures reconnects have already failed,
// following a linear progression capped at MaxReconnectBackoff (request
// retries in the proxy back off exponentially instead).
func ReconnectBackoff(consecutiveFailures int) time.Duration {
	return util.CalculateConnectionRetryBackoff(consecutiveFailures)
}
