package selector

import (
	"context"
	"testing"

	"github.com/relaymcp/meridian/internal/core/domain"
)

func sampleCandidates() []domain.MetricsRecord {
	return []domain.MetricsRecord{
		{Name: "alpha", IsHealthy: true, ResponseTimeMs: 400, SuccessRate: 0.99, LoadFactor: 0.2, CapabilityScore: 1.0},
		{Name: "beta", IsHealthy: true, ResponseTimeMs: 100, SuccessRate: 0.80, LoadFactor: 0.8, CapabilityScore: 1.0},
		{Name: "gamma", IsHealthy: false, ResponseTimeMs: 50, SuccessRate: 1.0, LoadFactor: 0.0, CapabilityScore: 1.0},
	}
}

func TestQuality_PicksHighestOverall(t *testing.T) {
	res, ok := NewQuality().Select(context.Background(), nil, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "alpha" {
		t.Errorf("expected alpha (better reliability+perf blend), got %s", res.SelectedServer)
	}
	if res.StrategyName != NameQuality {
		t.Errorf("expected strategy name %s, got %s", NameQuality, res.StrategyName)
	}
}

func TestPerformance_PicksLowestResponseTime(t *testing.T) {
	res, ok := NewPerformance().Select(context.Background(), nil, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "beta" {
		t.Errorf("expected beta (lowest response time among healthy), got %s", res.SelectedServer)
	}
}

func TestLoadBalanced_PicksLowestLoad(t *testing.T) {
	res, ok := NewLoadBalanced().Select(context.Background(), nil, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "alpha" {
		t.Errorf("expected alpha (lowest load factor among healthy), got %s", res.SelectedServer)
	}
}

func TestRoundRobin_RotatesThroughHealthySet(t *testing.T) {
	rr := NewRoundRobin()
	candidates := sampleCandidates()

	first, ok := rr.Select(context.Background(), nil, candidates)
	if !ok {
		t.Fatal("expected a selection")
	}
	second, ok := rr.Select(context.Background(), nil, candidates)
	if !ok {
		t.Fatal("expected a selection")
	}
	third, ok := rr.Select(context.Background(), nil, candidates)
	if !ok {
		t.Fatal("expected a selection")
	}

	if first.SelectedServer == second.SelectedServer {
		t.Errorf("expected rotation between distinct servers, got %s twice", first.SelectedServer)
	}
	if third.SelectedServer != first.SelectedServer {
		t.Errorf("expected rotation to wrap back to %s, got %s", first.SelectedServer, third.SelectedServer)
	}
}

func TestAdaptive_TightTimeoutDelegatesToPerformance(t *testing.T) {
	res, ok := NewAdaptive().Select(context.Background(), map[string]any{"timeout": 500.0}, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "beta" {
		t.Errorf("expected beta under tight timeout, got %s", res.SelectedServer)
	}
	if res.StrategyName != NameAdaptive {
		t.Errorf("expected strategy name %s, got %s", NameAdaptive, res.StrategyName)
	}
}

func TestAdaptive_HighPriorityPicksHighestSuccessRate(t *testing.T) {
	res, ok := NewAdaptive().Select(context.Background(), map[string]any{"priority": "high"}, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "alpha" {
		t.Errorf("expected alpha (highest success rate among healthy), got %s", res.SelectedServer)
	}
}

func TestAdaptive_DefaultsToQuality(t *testing.T) {
	res, ok := NewAdaptive().Select(context.Background(), map[string]any{}, sampleCandidates())
	if !ok {
		t.Fatal("expected a selection")
	}
	if res.SelectedServer != "alpha" {
		t.Errorf("expected alpha via quality default, got %s", res.SelectedServer)
	}
}

func TestSelectors_NoHealthyCandidates(t *testing.T) {
	candidates := []domain.MetricsRecord{{Name: "alpha", IsHealthy: false}}

	if _, ok := NewQuality().Select(context.Background(), nil, candidates); ok {
		t.Error("expected no selection when nothing is healthy")
	}
}

func TestFactory_CreateKnownAndUnknown(t *testing.T) {
	f := NewFactory()

	for _, name := range []string{NameQuality, NamePerformance, NameLoadBalanced, NameRoundRobin, NameAdaptive} {
		s, err := f.Create(name)
		if err != nil {
			t.Errorf("expected %s to be registered: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("expected selector name %s, got %s", name, s.Name())
		}
	}

	if _, err := f.Create("nonexistent"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestFactory_Available(t *testing.T) {
	f := NewFactory()
	available := f.Available()
	if len(available) != 5 {
		t.Errorf("expected 5 registered strategies, got %d", len(available))
	}
}
