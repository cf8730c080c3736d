package selector

import (
	"context"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

const NameAdaptive = "adaptive"

// Adaptive inspects the inbound request and delegates to whichever other
// strategy its content calls for: a tight timeout favours raw speed, a
// high-priority request favours reliability, everything else falls back to
// the general quality ranking.
type Adaptive struct {
	performance *Performance
	quality     *Quality
}

func NewAdaptive() *Adaptive {
	return &Adaptive{performance: NewPerformance(), quality: NewQuality()}
}

func (s *Adaptive) Name() string { return NameAdaptive }

func (s *Adaptive) Select(ctx context.Context, request map[string]any, candidates []domain.MetricsRecord) (ports.SelectionResult, bool) {
	pool := healthy(candidates)
	if len(pool) == 0 {
		return ports.SelectionResult{}, false
	}

	if timeout, ok := numericParam(request, "timeout"); ok && timeout < 1000 {
		res, selected := s.performance.Select(ctx, request, pool)
		res.StrategyName = NameAdaptive
		res.Reason = "delegated to performance: timeout below 1000ms"
		return res, selected
	}

	if priority, ok := request["priority"].(string); ok && priority == "high" {
		best := pool[0]
		for _, c := range pool[1:] {
			if c.SuccessRate > best.SuccessRate {
				best = c
			}
		}
		return buildResult(NameAdaptive, "high priority: highest success rate", best, pool), true
	}

	res, selected := s.quality.Select(ctx, request, pool)
	res.StrategyName = NameAdaptive
	res.Reason = "default: highest overall quality score"
	return res, selected
}

func numericParam(request map[string]any, key string) (float64, bool) {
	v, ok := request[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
