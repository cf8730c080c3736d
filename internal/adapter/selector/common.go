// Package selector implements the five pluggable server-selection
// strategies. Each operates over the healthy subset of MetricsRecord
// candidates; since tool/prompt/resource names already pin the target
// upstream via the Routing Table, the Selector here is a policy/diagnostics
// layer rather than the sole router.
package selector

import (
	"sort"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
)

func healthy(candidates []domain.MetricsRecord) []domain.MetricsRecord {
	out := make([]domain.MetricsRecord, 0, len(candidates))
	for _, c := range candidates {
		if c.IsHealthy {
			out = append(out, c)
		}
	}
	return out
}

// rankedByQuality sorts a copy of candidates by descending overall quality
// score; ties keep their original relative order.
func rankedByQuality(candidates []domain.MetricsRecord) []domain.MetricsRecord {
	ranked := make([]domain.MetricsRecord, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return domain.DeriveQuality(&ranked[i]).Overall > domain.DeriveQuality(&ranked[j]).Overall
	})
	return ranked
}

// buildResult assembles the common SelectionResult shape every strategy
// returns: confidence is 1 − rank/|healthy| where rank is the selected
// server's position in the overall-score ordering, and alternatives lists
// up to 3 runner-up names from that same ordering.
func buildResult(strategy, reason string, selected domain.MetricsRecord, candidates []domain.MetricsRecord) ports.SelectionResult {
	ranked := rankedByQuality(candidates)

	rank := 0
	for i, r := range ranked {
		if r.Name == selected.Name {
			rank = i
			break
		}
	}

	confidence := 1.0
	if len(ranked) > 0 {
		confidence = 1 - float64(rank)/float64(len(ranked))
	}

	alternatives := make([]string, 0, 3)
	for _, r := range ranked {
		if r.Name == selected.Name {
			continue
		}
		alternatives = append(alternatives, r.Name)
		if len(alternatives) == 3 {
			break
		}
	}

	return ports.SelectionResult{
		SelectedServer:        selected.Name,
		Reason:                reason,
		StrategyName:          strategy,
		Alternatives:          alternatives,
		Confidence:            confidence,
		EstimatedResponseTime: selected.ResponseTimeMs,
	}
}
