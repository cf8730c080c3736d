package selector

import (
	"context"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

const NamePerformance = "performance"

// Performance picks the healthy upstream with the lowest response-time EMA.
type Performance struct{}

func NewPerformance() *Performance { return &Performance{} }

func (s *Performance) Name() string { return NamePerformance }

func (s *Performance) Select(_ context.Context, _ map[string]any, candidates []domain.MetricsRecord) (ports.SelectionResult, bool) {
	pool := healthy(candidates)
	if len(pool) == 0 {
		return ports.SelectionResult{}, false
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.ResponseTimeMs < best.ResponseTimeMs {
			best = c
		}
	}

	return buildResult(NamePerformance, "lowest response time", best, pool), true
}
