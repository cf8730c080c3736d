// Package metrics centralises the per-upstream counters and derived quality
// scores that the selector strategies read. Every call reports here
// instead of each upstream tracking its own numbers, a single-collector
// design scoped to one upstream peer instead of one HTTP endpoint.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/relaymcp/meridian/internal/core/domain"
)

const (
	cleanupInterval = 60 * time.Second
)

type entry struct {
	lastUsed            atomicTime
	name                string
	totalRequests       xsync.Counter
	errorCount          xsync.Counter
	responseTimeEMA     atomicFloat
	loadFactor          atomicFloat
	capabilityScore     atomicFloat
	isHealthy           atomicBool
	requestsInWindow    xsync.Counter
	windowStart         atomicTime
}

// Store is the xsync-backed, lock-free MetricsStore implementation.
type Store struct {
	entries    *xsync.Map[string, *entry]
	load       LoadFactorStrategy
	stopSweep  chan struct{}
	sweepOnce  sync.Once
	retention  time.Duration
}

// NewStore builds a Store using the given load-factor strategy (RPM-based by
// default). retention controls how long an upstream with no traffic is kept
// before the periodic sweep drops it.
func NewStore(load LoadFactorStrategy, retention time.Duration) *Store {
	if load == nil {
		load = NewRpmLoadStrategy()
	}
	if retention <= 0 {
		retention = domain.MetricsRetention
	}
	s := &Store{
		entries:   xsync.NewMap[string, *entry](),
		load:      load,
		retention: retention,
		stopSweep: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *Store) Initialize(name string) {
	e := &entry{name: name}
	e.capabilityScore.store(domain.DefaultCapabilityScore)
	e.isHealthy.store(true)
	e.lastUsed.store(time.Now())
	e.windowStart.store(time.Now())
	s.entries.LoadOrStore(name, e)
}

func (s *Store) getOrInit(name string) *entry {
	e, ok := s.entries.Load(name)
	if !ok {
		s.Initialize(name)
		e, _ = s.entries.Load(name)
	}
	return e
}

// RecordRequest updates the response-time EMA (α=0.3), success/error
// counters, and the rolling request-per-minute window used for load factor.
func (s *Store) RecordRequest(name string, elapsed time.Duration, success bool) {
	e := s.getOrInit(name)
	e.totalRequests.Add(1)
	if !success {
		e.errorCount.Add(1)
	}
	e.lastUsed.store(time.Now())

	elapsedMs := float64(elapsed.Milliseconds())
	for {
		current := e.responseTimeEMA.load()
		var next float64
		if current == 0 {
			next = elapsedMs
		} else {
			next = domain.ResponseTimeEMAAlpha*elapsedMs + (1-domain.ResponseTimeEMAAlpha)*current
		}
		if e.responseTimeEMA.cas(current, next) {
			break
		}
	}

	s.rollWindow(e)
	e.requestsInWindow.Add(1)
	rpm := float64(e.requestsInWindow.Value())
	newLoad := s.load.Factor(rpm)
	for {
		current := e.loadFactor.load()
		var blended float64
		if current == 0 {
			blended = newLoad
		} else {
			blended = domain.LoadSampleWeight*newLoad + (1-domain.LoadSampleWeight)*current
		}
		if e.loadFactor.cas(current, blended) {
			break
		}
	}
}

// rollWindow resets the RPM counter once LoadWindow has elapsed, decaying
// the stored load factor so an upstream that goes idle cools down instead of
// looking permanently saturated.
func (s *Store) rollWindow(e *entry) {
	start := e.windowStart.load()
	if time.Since(start) < domain.LoadWindow {
		return
	}
	if e.windowStart.cas(start, time.Now()) {
		e.requestsInWindow.Store(0)
		for {
			current := e.loadFactor.load()
			if e.loadFactor.cas(current, current*domain.LoadDecayFactor) {
				break
			}
		}
	}
}

func (s *Store) MarkHealthy(name string) {
	e := s.getOrInit(name)
	e.isHealthy.store(true)
}

func (s *Store) MarkUnhealthy(name string, msg string) {
	e := s.getOrInit(name)
	e.isHealthy.store(false)
	_ = msg
}

func (s *Store) UpdateCapabilityScore(name string, score float64) {
	e := s.getOrInit(name)
	e.capabilityScore.store(score)
}

func (s *Store) Get(name string) (domain.MetricsRecord, bool) {
	e, ok := s.entries.Load(name)
	if !ok {
		return domain.MetricsRecord{}, false
	}
	return e.toRecord(), true
}

func (s *Store) Quality(name string) (domain.QualityScore, bool) {
	e, ok := s.entries.Load(name)
	if !ok {
		return domain.QualityScore{}, false
	}
	rec := e.toRecord()
	return domain.DeriveQuality(&rec), true
}

func (s *Store) Snapshot() map[string]domain.MetricsRecord {
	out := make(map[string]domain.MetricsRecord)
	s.entries.Range(func(name string, e *entry) bool {
		out[name] = e.toRecord()
		return true
	})
	return out
}

func (s *Store) Remove(name string) {
	s.entries.Delete(name)
}

func (e *entry) toRecord() domain.MetricsRecord {
	total := e.totalRequests.Value()
	errs := e.errorCount.Value()
	successRate := 1.0
	if total > 0 {
		successRate = 1 - float64(errs)/float64(total)
	}
	return domain.MetricsRecord{
		Name:            e.name,
		ResponseTimeMs:  e.responseTimeEMA.load(),
		SuccessRate:     successRate,
		LoadFactor:      e.loadFactor.load(),
		CapabilityScore: e.capabilityScore.load(),
		TotalRequests:   total,
		ErrorCount:      errs,
		IsHealthy:       e.isHealthy.load(),
		LastUsed:        e.lastUsed.load(),
	}
}

// sweepLoop drops upstreams that have had no traffic for longer than the
// configured retention, bounding memory the same way a tracked-endpoint map
// would be capped.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.retention)
	var stale []string
	s.entries.Range(func(name string, e *entry) bool {
		if e.lastUsed.load().Before(cutoff) {
			stale = append(stale, name)
		}
		return true
	})
	sort.Strings(stale)
	for _, name := range stale {
		s.entries.Delete(name)
	}
}

func (s *Store) Stop() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}
