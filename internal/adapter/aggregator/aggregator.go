// Package aggregator implements the fan-out/fan-in merge across connected
// upstreams for listing operations, and the lookup-miss rebuild path for
// targeted operations.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
)

// PerUpstreamTimeout is the hard ceiling races against each upstream's list
// call so one slow peer cannot stall the whole fan-out.
const PerUpstreamTimeout = 10 * time.Second

// Aggregator is the ports.Aggregator implementation.
type Aggregator struct {
	clients   map[string]ports.UpstreamClient
	tables    ports.RoutingTables
	health    ports.HealthMonitor
	classify  ports.ErrorClassifier
	log       *logger.StyledLogger
}

// New builds an Aggregator over the given upstream clients. health may be
// nil if no manual-trigger target is wired yet (tests commonly omit it).
func New(clients map[string]ports.UpstreamClient, tables ports.RoutingTables, health ports.HealthMonitor, classifier ports.ErrorClassifier, log *logger.StyledLogger) *Aggregator {
	return &Aggregator{
		clients:  clients,
		tables:   tables,
		health:   health,
		classify: classifier,
		log:      log,
	}
}

// List fans method out across every connected upstream (the lenient
// isConnected predicate, not the stricter health bit), merges all-settled
// results, and rebuilds the Routing Table for kind from scratch.
//
// resources/templates/list shares EntityResource with resources/list (no
// fourth EntityKind exists for it) but its items carry uriTemplate rather
// than uri, so it must not clear or repopulate the resource Routing Table
// that resources/list and resources/read depend on; see populatesTable.
func (a *Aggregator) List(ctx context.Context, kind domain.EntityKind, method string, cursor string) (ports.RPCResult, error) {
	populatesTable := populatesRoutingTable(method)
	if populatesTable {
		a.tables.Clear(kind)
	}

	names := a.connectedNames()

	var mu sync.Mutex
	merged := make([]map[string]any, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		client := a.clients[name]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, PerUpstreamTimeout)
			defer cancel()

			res, err := client.Request(callCtx, method, map[string]any{"cursor": cursor})
			if err != nil {
				a.handleListError(name, client, method, err)
				return nil
			}

			items := namespaceItems(kind, name, res.Items)
			mu.Lock()
			merged = append(merged, items...)
			if populatesTable {
				for _, item := range items {
					if id, ok := identityOf(kind, method, item); ok {
						a.tables.Set(kind, id, name)
					}
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(merged, func(i, j int) bool {
		idI, _ := identityOf(kind, method, merged[i])
		idJ, _ := identityOf(kind, method, merged[j])
		return idI < idJ
	})

	return ports.RPCResult{Items: merged, Cursor: cursor}, nil
}

// populatesRoutingTable reports whether method's results should clear and
// repopulate their EntityKind's Routing Table. resources/templates/list is
// the one listing method that shares a kind without sharing an identity
// field, so it is excluded.
func populatesRoutingTable(method string) bool {
	return method != "resources/templates/list"
}

// RebuildOne reruns List for a single entity kind, used by the Proxy
// Server's lookup-miss path. The merged result is discarded;
// only the Routing Table side effect matters to the caller.
func (a *Aggregator) RebuildOne(ctx context.Context, kind domain.EntityKind, method string) error {
	_, err := a.List(ctx, kind, method, "")
	return err
}

func (a *Aggregator) connectedNames() []string {
	names := make([]string, 0, len(a.clients))
	for name, client := range a.clients {
		if client.State().IsConnected {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// handleListError demotes the upstream on a connection-class failure and
// schedules a manual health-check trigger; a business-class failure (e.g.
// an upstream that rejects the listing call outright) never touches
// connection state.
func (a *Aggregator) handleListError(name string, client ports.UpstreamClient, method string, err error) {
	wrapped := &domain.AggregateError{Upstream: name, Method: method, Err: err}
	a.log.WarnWithUpstream(name, wrapped.Error())

	if a.classify == nil || a.classify(err) != ports.ClassConnection {
		return
	}

	state := client.State()
	state.IsConnected = false
	state.LastError = err.Error()
	client.SetState(state)

	if a.health != nil {
		go a.health.Trigger(context.Background(), name)
	}
}

// identityFieldFor returns the machine-identifying key for kind: the tool
// or prompt name, or the resource URI. resources/templates/list keys its
// descriptors by uriTemplate instead of uri.
func identityFieldFor(kind domain.EntityKind, method string) string {
	if kind == domain.EntityResource {
		if method == "resources/templates/list" {
			return "uriTemplate"
		}
		return "uri"
	}
	return "name"
}

// displayFieldFor returns the human-readable key that gets namespaced.
func displayFieldFor(kind domain.EntityKind) string {
	if kind == domain.EntityResource {
		return "name"
	}
	return "description"
}

func identityOf(kind domain.EntityKind, method string, item map[string]any) (string, bool) {
	v, ok := item[identityFieldFor(kind, method)]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// namespaceItems clones each raw descriptor and prefixes its display field
// with "[<upstream>] ", leaving the identity field untouched.
func namespaceItems(kind domain.EntityKind, upstream string, items []map[string]any) []map[string]any {
	display := displayFieldFor(kind)

	out := make([]map[string]any, 0, len(items))
	for _, raw := range items {
		item := make(map[string]any, len(raw))
		for k, v := range raw {
			item[k] = v
		}
		if text, ok := item[display].(string); ok {
			item[display] = fmt.Sprintf("[%s] %s", upstream, text)
		} else {
			item[display] = fmt.Sprintf("[%s]", upstream)
		}
		out = append(out, item)
	}
	return out
}
