package ports

import (
	"context"
	"time"

	"github.com/relaymcp/meridian/internal/core/domain"
)

// RPCResult is the out-of-scope wire codec's result shape, represented here
// only as the thin envelope the routing/aggregation core needs: a method
// name, raw params, and whatever typed result comes back. The real codec
// (request/response framing over stdio or SSE) is an external collaborator.
type RPCResult struct {
	Result map[string]any
	Items  []map[string]any
	Cursor string
}

// ConnectionEvent is published on a Transport's event bus whenever the
// underlying channel opens or closes.
type ConnectionEvent struct {
	At       time.Time
	Upstream string
	Err      string
	Closed   bool
}

// Transport is the external MCP RPC collaborator: a request/response
// channel to one upstream, reachable over stdio or SSE. The wire codec and
// schema validation are out of scope; this is the seam the Upstream
// Client drives.
type Transport interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Request(ctx context.Context, method string, params map[string]any) (RPCResult, error)
	// Events returns a channel of connection lifecycle notifications. May
	// be nil for transports (like stdio) that only signal via Request errors.
	Events() <-chan ConnectionEvent
}

// UpstreamClient owns one transport + RPC channel to one configured peer.
type UpstreamClient interface {
	Name() string
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Request(ctx context.Context, method string, params map[string]any) (RPCResult, error)
	State() domain.ConnectionState
	SetState(domain.ConnectionState)
}

// MetricsStore is the per-upstream counters and derived-score keeper.
type MetricsStore interface {
	Initialize(name string)
	RecordRequest(name string, elapsed time.Duration, success bool)
	MarkHealthy(name string)
	MarkUnhealthy(name string, msg string)
	UpdateCapabilityScore(name string, score float64)
	Get(name string) (domain.MetricsRecord, bool)
	Quality(name string) (domain.QualityScore, bool)
	Snapshot() map[string]domain.MetricsRecord
	Remove(name string)
}

// HealthMonitor catches silent connection loss the transport's own
// callbacks missed, and keeps the Metrics Store's health bit authoritative.
type HealthMonitor interface {
	Start(ctx context.Context)
	Stop()
	Trigger(ctx context.Context, upstream string)
	Healthy() []string
	Unhealthy() []string
	Summary() domain.HealthSummary
	ShouldMarkUnhealthy(name string, consecutiveFailures int) bool
	CanRecover(name string) bool
}

// RoutingTables is the Proxy Server's owned set of three name→upstream
// mappings.
type RoutingTables interface {
	Clear(kind domain.EntityKind)
	Set(kind domain.EntityKind, name, upstream string)
	Lookup(kind domain.EntityKind, name string) (string, bool)
	Remove(kind domain.EntityKind, name string)
	Names(kind domain.EntityKind) []string
}

// Aggregator fans list-type requests out across connected upstreams with
// partial-failure tolerance.
type Aggregator interface {
	List(ctx context.Context, kind domain.EntityKind, method string, cursor string) (RPCResult, error)
	RebuildOne(ctx context.Context, kind domain.EntityKind, method string) error
}

// ServerSelector is the pluggable strategy that picks one upstream from a
// candidate set using metrics.
type ServerSelector interface {
	Name() string
	Select(ctx context.Context, request map[string]any, candidates []domain.MetricsRecord) (SelectionResult, bool)
}

// SelectionResult is what a ServerSelector returns.
type SelectionResult struct {
	SelectedServer        string
	Reason                string
	StrategyName           string
	Alternatives          []string
	Confidence             float64
	EstimatedResponseTime float64
}

// ErrorClassifier decides whether a raw upstream error is connection-class
// (retried, can demote) or business-class (never retried, never demotes).
// Exposed as a pluggable predicate per the REDESIGN note on string-based
// classification fragility.
type ErrorClassifier func(err error) ErrorClass

type ErrorClass int

const (
	ClassBusiness ErrorClass = iota
	ClassConnection
)

// ProxyService exposes the seven MCP request handlers.
type ProxyService interface {
	ToolsList(ctx context.Context, cursor string) (RPCResult, error)
	ToolsCall(ctx context.Context, name string, params map[string]any) (RPCResult, error)
	PromptsList(ctx context.Context, cursor string) (RPCResult, error)
	PromptsGet(ctx context.Context, name string, params map[string]any) (RPCResult, error)
	ResourcesList(ctx context.Context, cursor string) (RPCResult, error)
	ResourcesRead(ctx context.Context, uri string, params map[string]any) (RPCResult, error)
	ResourceTemplatesList(ctx context.Context, cursor string) (RPCResult, error)
}
