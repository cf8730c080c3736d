// Package proxy is the Proxy Server: the seven MCP request handlers and the
// retry wrapper that absorbs connection-class noise on targeted operations.
package proxy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/relaymcp/meridian/internal/adapter/classify"
	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
	"github.com/relaymcp/meridian/pkg/pool"
)

var errUnknownUpstream = errors.New("upstream not registered")

const (
	ListTimeout           = 10 * time.Second
	ToolCallTimeout       = 60 * time.Second
	PromptResourceTimeout = 15 * time.Second

	DefaultToolCallMaxRetries = 1
	DefaultMaxRetries         = 2
)

// Server is the ports.ProxyService implementation.
type Server struct {
	clients    map[string]ports.UpstreamClient
	tables     ports.RoutingTables
	aggregator ports.Aggregator
	metrics    ports.MetricsStore
	health     ports.HealthMonitor
	classify   ports.ErrorClassifier
	log        *logger.StyledLogger

	toolCallMaxRetries int
	defaultMaxRetries  int

	failures *xsync.Map[string, *atomic.Int64]
}

// New builds a Server. classifier defaults to classify.Default when nil.
func New(clients map[string]ports.UpstreamClient, tables ports.RoutingTables, aggregator ports.Aggregator, metrics ports.MetricsStore, health ports.HealthMonitor, classifier ports.ErrorClassifier, log *logger.StyledLogger) *Server {
	if classifier == nil {
		classifier = classify.Default
	}
	return &Server{
		clients:            clients,
		tables:             tables,
		aggregator:         aggregator,
		metrics:            metrics,
		health:             health,
		classify:           classifier,
		log:                log,
		toolCallMaxRetries: DefaultToolCallMaxRetries,
		defaultMaxRetries:  DefaultMaxRetries,
		failures:           xsync.NewMap[string, *atomic.Int64](),
	}
}

func (s *Server) ToolsList(ctx context.Context, cursor string) (ports.RPCResult, error) {
	return s.aggregator.List(ctx, domain.EntityTool, "tools/list", cursor)
}

func (s *Server) PromptsList(ctx context.Context, cursor string) (ports.RPCResult, error) {
	return s.aggregator.List(ctx, domain.EntityPrompt, "prompts/list", cursor)
}

func (s *Server) ResourcesList(ctx context.Context, cursor string) (ports.RPCResult, error) {
	return s.aggregator.List(ctx, domain.EntityResource, "resources/list", cursor)
}

// ResourceTemplatesList shares the name-display namespacing rule with
// ResourcesList but neither clears nor populates the resource Routing
// Table (templates are identified by uriTemplate, not uri), so no fourth
// EntityKind is needed.
func (s *Server) ResourceTemplatesList(ctx context.Context, cursor string) (ports.RPCResult, error) {
	return s.aggregator.List(ctx, domain.EntityResource, "resources/templates/list", cursor)
}

func (s *Server) ToolsCall(ctx context.Context, name string, params map[string]any) (ports.RPCResult, error) {
	return s.dispatchTargeted(ctx, domain.EntityTool, name, "tools/list", "tools/call", params, ToolCallTimeout, s.toolCallMaxRetries)
}

func (s *Server) PromptsGet(ctx context.Context, name string, params map[string]any) (ports.RPCResult, error) {
	return s.dispatchTargeted(ctx, domain.EntityPrompt, name, "prompts/list", "prompts/get", params, PromptResourceTimeout, s.defaultMaxRetries)
}

func (s *Server) ResourcesRead(ctx context.Context, uri string, params map[string]any) (ports.RPCResult, error) {
	return s.dispatchTargeted(ctx, domain.EntityResource, uri, "resources/list", "resources/read", params, PromptResourceTimeout, s.defaultMaxRetries)
}

// dispatchTargeted implements 's lookup-with-rebuild-then-retry flow
// shared by all three targeted operations.
func (s *Server) dispatchTargeted(ctx context.Context, kind domain.EntityKind, name, listMethod, callMethod string, params map[string]any, timeout time.Duration, maxRetries int) (ports.RPCResult, error) {
	upstream, ok := s.tables.Lookup(kind, name)
	if !ok {
		rebuildCtx, cancel := context.WithTimeout(ctx, ListTimeout)
		err := s.aggregator.RebuildOne(rebuildCtx, kind, listMethod)
		cancel()
		if err != nil {
			s.log.WarnWithUpstream(string(kind), "rebuild failed: "+err.Error())
		}
		upstream, ok = s.tables.Lookup(kind, name)
		if !ok {
			return ports.RPCResult{}, domain.NewRoutingError(string(kind), name)
		}
	}

	env := envelopePool.Get()
	env.fill(kind, name, params)

	res, err := s.dispatch(ctx, upstream, callMethod, env.params, timeout, maxRetries)
	envelopePool.Put(env)

	if err != nil && classify.IsNotFound(err) {
		s.tables.Remove(kind, name)
	}
	return res, err
}

// envelope is the pooled request-params map for targeted dispatches: every
// ToolsCall/PromptsGet/ResourcesRead otherwise allocates a fresh map per
// call on what is the hottest path through the proxy. Reset zeroes it for
// reuse once the synchronous dispatch that borrowed it returns.
type envelope struct {
	params map[string]any
}

func (e *envelope) Reset() {
	for k := range e.params {
		delete(e.params, k)
	}
}

// fill copies params into the envelope and sets the machine-identifying
// field (tool/prompt name, or resource URI) the upstream needs to resolve
// the call, independent of whatever the caller already put in params.
func (e *envelope) fill(kind domain.EntityKind, name string, params map[string]any) {
	for k, v := range params {
		e.params[k] = v
	}
	if kind == domain.EntityResource {
		e.params["uri"] = name
	} else {
		e.params["name"] = name
	}
}

var envelopePool = pool.NewLitePool(func() *envelope {
	return &envelope{params: make(map[string]any, 4)}
})
