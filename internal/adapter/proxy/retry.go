package proxy

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

// retryBackoff implements the documented 2^attempt × 1000ms progression
//, attempt counted from 1 for the first retry.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// dispatch is the retry wrapper every targeted operation runs through
//. Business-class failures re-raise immediately; connection-class
// failures retry up to maxRetries times with exponential backoff, bumping
// the consecutive-failure counter that feeds shouldMarkUnhealthy.
func (s *Server) dispatch(ctx context.Context, upstreamName, method string, params map[string]any, timeout time.Duration, maxRetries int) (ports.RPCResult, error) {
	client, ok := s.clients[upstreamName]
	if !ok {
		return ports.RPCResult{}, domain.NewUpstreamError(method, upstreamName, errUnknownUpstream)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		res, err := client.Request(callCtx, method, params)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			s.metrics.RecordRequest(upstreamName, elapsed, true)
			s.resetFailures(upstreamName)
			return res, nil
		}

		s.metrics.RecordRequest(upstreamName, elapsed, false)
		lastErr = err

		if s.classify == nil || s.classify(err) != ports.ClassConnection {
			return ports.RPCResult{}, err
		}

		failures := s.incrementFailures(upstreamName)
		if s.health != nil && s.health.ShouldMarkUnhealthy(upstreamName, failures) {
			s.metrics.MarkUnhealthy(upstreamName, err.Error())
		}

		if attempt < maxRetries {
			select {
			case <-time.After(retryBackoff(attempt + 1)):
			case <-ctx.Done():
				return ports.RPCResult{}, ctx.Err()
			}
		}
	}
	return ports.RPCResult{}, lastErr
}

func (s *Server) incrementFailures(name string) int {
	counter, _ := s.failures.LoadOrCompute(name, func() (*atomic.Int64, bool) { return new(atomic.Int64), false })
	return int(counter.Add(1))
}

func (s *Server) resetFailures(name string) {
	counter, _ := s.failures.LoadOrCompute(name, func() (*atomic.Int64, bool) { return new(atomic.Int64), false })
	counter.Store(0)
}

