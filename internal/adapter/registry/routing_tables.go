// Package registry holds the Routing Tables: the three name→upstream
// mappings the Aggregator rebuilds from listing responses and the Proxy
// Server consults to dispatch targeted operations.
package registry

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/relaymcp/meridian/internal/core/domain"
)

// Tables is the xsync-backed ports.RoutingTables implementation: one
// concurrent map per domain.EntityKind, built once at construction for the
// three known kinds.
type Tables struct {
	byKind map[domain.EntityKind]*xsync.Map[string, string]
}

// NewTables builds empty routing tables for the three known entity kinds.
func NewTables() *Tables {
	return &Tables{
		byKind: map[domain.EntityKind]*xsync.Map[string, string]{
			domain.EntityTool:     xsync.NewMap[string, string](),
			domain.EntityPrompt:   xsync.NewMap[string, string](),
			domain.EntityResource: xsync.NewMap[string, string](),
		},
	}
}

func (t *Tables) table(kind domain.EntityKind) *xsync.Map[string, string] {
	m, ok := t.byKind[kind]
	if !ok {
		// A kind outside the three declared at construction time has no
		// backing table yet; create and keep one on first use rather than
		// panic.
		m = xsync.NewMap[string, string]()
		t.byKind[kind] = m
	}
	return m
}

// Clear wipes the table for kind. Called at the start of every aggregate
// listing fan-out so stale entries from departed upstreams cannot survive
// past the next rebuild.
func (t *Tables) Clear(kind domain.EntityKind) {
	t.table(kind).Clear()
}

// Set records that name (a tool name, prompt name, or resource URI) is
// owned by upstream. Last writer wins when two upstreams expose the same
// name; the Aggregator calls Set from concurrent per-upstream goroutines,
// so the winner follows completion order and can differ between aggregates.
func (t *Tables) Set(kind domain.EntityKind, name, upstream string) {
	t.table(kind).Store(name, upstream)
}

func (t *Tables) Lookup(kind domain.EntityKind, name string) (string, bool) {
	return t.table(kind).Load(name)
}

// Remove evicts a single name, used when an upstream reports "tool not
// found" for an entry the table still carries without
// forcing a full rebuild.
func (t *Tables) Remove(kind domain.EntityKind, name string) {
	t.table(kind).Delete(name)
}

func (t *Tables) Names(kind domain.EntityKind) []string {
	m := t.table(kind)
	names := make([]string, 0, m.Size())
	m.Range(func(name, _ string) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
