package selector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relaymcp/meridian/internal/core/ports"
)

// Factory is the name-keyed registry of selection strategies, a
// load-balancer factory pattern returning the ServerSelector seam instead
// of a per-request endpoint balancer.
type Factory struct {
	creators map[string]func() ports.ServerSelector
	mu       sync.RWMutex
}

// NewFactory builds a Factory pre-registered with the five documented
// strategies.
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]func() ports.ServerSelector)}
	f.Register(NameQuality, func() ports.ServerSelector { return NewQuality() })
	f.Register(NamePerformance, func() ports.ServerSelector { return NewPerformance() })
	f.Register(NameLoadBalanced, func() ports.ServerSelector { return NewLoadBalanced() })
	f.Register(NameRoundRobin, func() ports.ServerSelector { return NewRoundRobin() })
	f.Register(NameAdaptive, func() ports.ServerSelector { return NewAdaptive() })
	return f
}

func (f *Factory) Register(name string, creator func() ports.ServerSelector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

func (f *Factory) Create(name string) (ports.ServerSelector, error) {
	f.mu.RLock()
	creator, ok := f.creators[name]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown selection strategy: %s", name)
	}
	return creator(), nil
}

func (f *Factory) Available() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
