package metrics

import (
	"testing"
	"time"
)

func TestStore_InitializeDefaults(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")

	rec, ok := s.Get("alpha")
	if !ok {
		t.Fatal("expected alpha to be present after Initialize")
	}
	if !rec.IsHealthy {
		t.Error("expected new upstream to start healthy")
	}
	if rec.CapabilityScore != 1.0 {
		t.Errorf("expected default capability score 1.0, got %v", rec.CapabilityScore)
	}
}

func TestStore_RecordRequestUpdatesEMA(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.RecordRequest("alpha", 100*time.Millisecond, true)

	rec, _ := s.Get("alpha")
	if rec.ResponseTimeMs != 100 {
		t.Errorf("expected first sample to set EMA directly, got %v", rec.ResponseTimeMs)
	}

	s.RecordRequest("alpha", 300*time.Millisecond, true)
	rec, _ = s.Get("alpha")
	expected := 0.3*300 + 0.7*100
	if rec.ResponseTimeMs != expected {
		t.Errorf("expected EMA %v, got %v", expected, rec.ResponseTimeMs)
	}
}

func TestStore_RecordRequestFirstSampleSetsLoadFactorDirectly(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.RecordRequest("alpha", time.Millisecond, true)

	rec, _ := s.Get("alpha")
	expected := NewRpmLoadStrategy().Factor(1)
	if rec.LoadFactor != expected {
		t.Errorf("expected first sample to set load factor directly to %v, got %v", expected, rec.LoadFactor)
	}
}

func TestStore_RecordRequestTracksErrors(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.RecordRequest("alpha", time.Millisecond, true)
	s.RecordRequest("alpha", time.Millisecond, false)

	rec, _ := s.Get("alpha")
	if rec.TotalRequests != 2 {
		t.Errorf("expected 2 total requests, got %d", rec.TotalRequests)
	}
	if rec.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", rec.ErrorCount)
	}
	if rec.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %v", rec.SuccessRate)
	}
}

func TestStore_MarkHealthyUnhealthy(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.MarkUnhealthy("alpha", "connection refused")

	rec, _ := s.Get("alpha")
	if rec.IsHealthy {
		t.Error("expected upstream to be unhealthy after MarkUnhealthy")
	}

	s.MarkHealthy("alpha")
	rec, _ = s.Get("alpha")
	if !rec.IsHealthy {
		t.Error("expected upstream to be healthy after MarkHealthy")
	}
}

func TestStore_QualityReflectsWeights(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.RecordRequest("alpha", 0, true)

	q, ok := s.Quality("alpha")
	if !ok {
		t.Fatal("expected quality score for alpha")
	}
	if q.Overall <= 0 {
		t.Errorf("expected a positive overall quality for a fresh healthy upstream, got %v", q.Overall)
	}
}

func TestStore_RemoveDropsEntry(t *testing.T) {
	s := NewStore(nil, time.Hour)
	defer s.Stop()

	s.Initialize("alpha")
	s.Remove("alpha")

	if _, ok := s.Get("alpha"); ok {
		t.Error("expected alpha to be gone after Remove")
	}
}

func TestRpmLoadStrategy_Saturates(t *testing.T) {
	strat := NewRpmLoadStrategy()

	if f := strat.Factor(0); f != 0 {
		t.Errorf("expected 0 load at 0 rpm, got %v", f)
	}
	if f := strat.Factor(200); f != 1 {
		t.Errorf("expected saturated load (1) above 100rpm, got %v", f)
	}
	if f := strat.Factor(50); f != 0.5 {
		t.Errorf("expected 0.5 load at 50rpm, got %v", f)
	}
}

func TestRatioLoadStrategy_Clamps(t *testing.T) {
	strat := NewRatioLoadStrategy()

	if f := strat.Factor(-1); f != 0 {
		t.Errorf("expected clamp to 0, got %v", f)
	}
	if f := strat.Factor(2); f != 1 {
		t.Errorf("expected clamp to 1, got %v", f)
	}
	if f := strat.Factor(0.7); f != 0.7 {
		t.Errorf("expected passthrough 0.7, got %v", f)
	}
}
