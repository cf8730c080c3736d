package metrics

import "github.com/relaymcp/meridian/internal/core/domain"

// LoadFactorStrategy converts a raw load signal into the normalised [0,1]
// load factor the quality score and LoadBalanced selector read. Exposed as
// an interface so alternate saturation models can be swapped in without
// touching the Store.
type LoadFactorStrategy interface {
	Factor(signal float64) float64
}

// RpmLoadStrategy saturates at LoadSaturationRPM requests per minute, the
// documented default.
type RpmLoadStrategy struct {
	saturation float64
}

func NewRpmLoadStrategy() *RpmLoadStrategy {
	return &RpmLoadStrategy{saturation: domain.LoadSaturationRPM}
}

func (r *RpmLoadStrategy) Factor(rpm float64) float64 {
	if r.saturation <= 0 {
		return 0
	}
	factor := rpm / r.saturation
	if factor > 1 {
		factor = 1
	}
	if factor < 0 {
		factor = 0
	}
	return factor
}

// RatioLoadStrategy treats the signal as already a 0..1 ratio (e.g.
// in-flight requests / MaxConcurrent) and simply clamps it, for upstreams
// where concurrency rather than throughput is the saturation signal.
type RatioLoadStrategy struct{}

func NewRatioLoadStrategy() *RatioLoadStrategy {
	return &RatioLoadStrategy{}
}

func (r *RatioLoadStrategy) Factor(ratio float64) float64 {
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}
