package selector

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

const NameRoundRobin = "round-robin"

// RoundRobin steps through the healthy set, sorted by name for a stable
// rotation order, advancing its index on every selection.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Name() string { return NameRoundRobin }

func (s *RoundRobin) Select(_ context.Context, _ map[string]any, candidates []domain.MetricsRecord) (ports.SelectionResult, bool) {
	pool := healthy(candidates)
	if len(pool) == 0 {
		return ports.SelectionResult{}, false
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Name < pool[j].Name })

	idx := s.counter.Add(1) - 1
	selected := pool[idx%uint64(len(pool))]

	return buildResult(NameRoundRobin, "round-robin rotation", selected, pool), true
}
