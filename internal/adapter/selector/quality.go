package selector

import (
	"context"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

const NameQuality = "quality"

// Quality picks the healthy upstream with the highest overall quality
// score.
type Quality struct{}

func NewQuality() *Quality { return &Quality{} }

func (s *Quality) Name() string { return NameQuality }

func (s *Quality) Select(_ context.Context, _ map[string]any, candidates []domain.MetricsRecord) (ports.SelectionResult, bool) {
	pool := healthy(candidates)
	if len(pool) == 0 {
		return ports.SelectionResult{}, false
	}

	best := pool[0]
	bestScore := domain.DeriveQuality(&best).Overall
	for _, c := range pool[1:] {
		if score := domain.DeriveQuality(&c).Overall; score > bestScore {
			best = c
			bestScore = score
		}
	}

	return buildResult(NameQuality, "highest overall quality score", best, pool), true
}
