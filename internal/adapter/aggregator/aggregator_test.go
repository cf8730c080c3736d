package aggregator

import (
	"context"
	"errors"
	"testing"

	"github.com/relaymcp/meridian/internal/adapter/classify"
	"github.com/relaymcp/meridian/internal/adapter/registry"
	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
)

type scriptedClient struct {
	name    string
	state   domain.ConnectionState
	result  ports.RPCResult
	err     error
}

func (c *scriptedClient) Name() string                 { return c.name }
func (c *scriptedClient) Connect(context.Context) error { return nil }
func (c *scriptedClient) Close(context.Context) error   { return nil }
func (c *scriptedClient) Request(context.Context, string, map[string]any) (ports.RPCResult, error) {
	return c.result, c.err
}
func (c *scriptedClient) State() domain.ConnectionState    { return c.state }
func (c *scriptedClient) SetState(s domain.ConnectionState) { c.state = s }

func testLogger(t *testing.T) *logger.StyledLogger {
	t.Helper()
	_, sl, cleanup, err := logger.NewWithTheme(&logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	t.Cleanup(cleanup)
	return sl
}

func TestAggregator_List_MergesAndNamespaces(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &scriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: true},
			result: ports.RPCResult{Items: []map[string]any{
				{"name": "search", "description": "searches things"},
			}},
		},
		"beta": &scriptedClient{
			name:  "beta",
			state: domain.ConnectionState{IsConnected: true},
			result: ports.RPCResult{Items: []map[string]any{
				{"name": "fetch", "description": "fetches things"},
			}},
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	res, err := agg.List(context.Background(), domain.EntityTool, "tools/list", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(res.Items))
	}

	for _, item := range res.Items {
		name := item["name"].(string)
		desc := item["description"].(string)
		switch name {
		case "search":
			if desc != "[alpha] searches things" {
				t.Errorf("expected namespaced description, got %q", desc)
			}
		case "fetch":
			if desc != "[beta] fetches things" {
				t.Errorf("expected namespaced description, got %q", desc)
			}
		default:
			t.Errorf("unexpected item name %q", name)
		}
	}

	if upstream, ok := tables.Lookup(domain.EntityTool, "search"); !ok || upstream != "alpha" {
		t.Errorf("expected search routed to alpha, got %q ok=%v", upstream, ok)
	}
	if upstream, ok := tables.Lookup(domain.EntityTool, "fetch"); !ok || upstream != "beta" {
		t.Errorf("expected fetch routed to beta, got %q ok=%v", upstream, ok)
	}
}

func TestAggregator_List_SkipsDisconnected(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &scriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: false},
			result: ports.RPCResult{Items: []map[string]any{
				{"name": "search", "description": "x"},
			}},
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	res, err := agg.List(context.Background(), domain.EntityTool, "tools/list", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("expected disconnected upstream skipped, got %d items", len(res.Items))
	}
}

func TestAggregator_List_PartialFailureDoesNotAbort(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &scriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: true},
			err:   errors.New("Connection refused"),
		},
		"beta": &scriptedClient{
			name:  "beta",
			state: domain.ConnectionState{IsConnected: true},
			result: ports.RPCResult{Items: []map[string]any{
				{"name": "fetch", "description": "fetches things"},
			}},
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	res, err := agg.List(context.Background(), domain.EntityTool, "tools/list", "")
	if err != nil {
		t.Fatalf("expected aggregate call to succeed despite partial failure: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected 1 item from the surviving upstream, got %d", len(res.Items))
	}

	alphaClient := clients["alpha"].(*scriptedClient)
	if alphaClient.state.IsConnected {
		t.Error("expected alpha demoted to disconnected after connection-class error")
	}
	if alphaClient.state.LastError == "" {
		t.Error("expected lastError recorded on alpha")
	}
}

func TestAggregator_List_BusinessErrorDoesNotDemote(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &scriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: true},
			err:   errors.New("Invalid parameters"),
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	_, err := agg.List(context.Background(), domain.EntityTool, "tools/list", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alphaClient := clients["alpha"].(*scriptedClient)
	if !alphaClient.state.IsConnected {
		t.Error("expected business-class error to leave alpha connected")
	}
}

func TestAggregator_RebuildOne(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &scriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: true},
			result: ports.RPCResult{Items: []map[string]any{
				{"uri": "res://doc", "name": "doc"},
			}},
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	if err := agg.RebuildOne(context.Background(), domain.EntityResource, "resources/list"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if upstream, ok := tables.Lookup(domain.EntityResource, "res://doc"); !ok || upstream != "alpha" {
		t.Errorf("expected res://doc routed to alpha, got %q ok=%v", upstream, ok)
	}
}

// methodScriptedClient returns a different RPCResult depending on the
// requested method, for distinguishing resources/list from
// resources/templates/list in a single test.
type methodScriptedClient struct {
	name    string
	state   domain.ConnectionState
	results map[string]ports.RPCResult
}

func (c *methodScriptedClient) Name() string                 { return c.name }
func (c *methodScriptedClient) Connect(context.Context) error { return nil }
func (c *methodScriptedClient) Close(context.Context) error   { return nil }
func (c *methodScriptedClient) Request(_ context.Context, method string, _ map[string]any) (ports.RPCResult, error) {
	return c.results[method], nil
}
func (c *methodScriptedClient) State() domain.ConnectionState     { return c.state }
func (c *methodScriptedClient) SetState(s domain.ConnectionState) { c.state = s }

func TestAggregator_List_TemplatesDoesNotClobberResourceTable(t *testing.T) {
	clients := map[string]ports.UpstreamClient{
		"alpha": &methodScriptedClient{
			name:  "alpha",
			state: domain.ConnectionState{IsConnected: true},
			results: map[string]ports.RPCResult{
				"resources/list": {Items: []map[string]any{
					{"uri": "res://doc", "name": "doc"},
				}},
				"resources/templates/list": {Items: []map[string]any{
					{"uriTemplate": "res://{id}", "name": "template"},
				}},
			},
		},
	}
	tables := registry.NewTables()
	agg := New(clients, tables, nil, classify.Default, testLogger(t))

	if _, err := agg.List(context.Background(), domain.EntityResource, "resources/list", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upstream, ok := tables.Lookup(domain.EntityResource, "res://doc"); !ok || upstream != "alpha" {
		t.Fatalf("expected res://doc routed to alpha, got %q ok=%v", upstream, ok)
	}

	if _, err := agg.List(context.Background(), domain.EntityResource, "resources/templates/list", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if upstream, ok := tables.Lookup(domain.EntityResource, "res://doc"); !ok || upstream != "alpha" {
		t.Errorf("expected templates listing to leave res://doc routed to alpha, got %q ok=%v", upstream, ok)
	}
}
