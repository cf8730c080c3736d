package selector

import (
	"context"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

const NameLoadBalanced = "load-balanced"

// LoadBalanced picks the healthy upstream with the lowest load factor
//, spreading traffic toward whichever peer is least saturated.
type LoadBalanced struct{}

func NewLoadBalanced() *LoadBalanced { return &LoadBalanced{} }

func (s *LoadBalanced) Name() string { return NameLoadBalanced }

func (s *LoadBalanced) Select(_ context.Context, _ map[string]any, candidates []domain.MetricsRecord) (ports.SelectionResult, bool) {
	pool := healthy(candidates)
	if len(pool) == 0 {
		return ports.SelectionResult{}, false
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.LoadFactor < best.LoadFactor {
			best = c
		}
	}

	return buildResult(NameLoadBalanced, "lowest load factor", best, pool), true
}
