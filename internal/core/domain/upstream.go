package domain

import (
	"time"
)

// TransportKind identifies how the proxy talks to an upstream MCP server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// StdioTransportConfig spawns a child process speaking MCP over stdio.
type StdioTransportConfig struct {
	Command      string
	Args         []string
	EnvAllowlist []string
}

// SSETransportConfig talks MCP over server-sent-events with an HTTP POST back-channel.
type SSETransportConfig struct {
	URL string
}

// Upstream is one configured peer MCP server.
type Upstream struct {
	ConnectedAt         time.Time
	Stdio               *StdioTransportConfig
	SSE                 *SSETransportConfig
	Name                string
	Transport           TransportKind
	Capabilities        []string
	Priority            int
	MaxConcurrent       int
	State               ConnectionState
	ConsecutiveFailures int
}

// ConnectionState is held per Upstream and mutated only by transport event
// callbacks, request handlers on connection-class errors, and the periodic
// SSE readiness probe.
type ConnectionState struct {
	LastError   string
	IsConnected bool
	ErrorLogged bool
}

const (
	ConnectAttempts     = 3
	ConnectBackoff      = 2500 * time.Millisecond
	SSEProbeInterval    = 30 * time.Second
	SSEReadyStateClosed = 2
)

// UnhealthyFailureThreshold is the number of consecutive connection-class
// failures that flips an upstream to unhealthy.
const UnhealthyFailureThreshold = 5

// RecoveryWindow is how long a health check result stays authoritative
// before canRecover allows a fresh probe to matter again.
const RecoveryWindow = 60 * time.Second

// MaxReconnectBackoff caps the reconnect backoff progression
// (util.CalculateConnectionRetryBackoff) so a persistently failing upstream is still probed
// periodically rather than abandoned.
const MaxReconnectBackoff = 60 * time.Second

// ReconnectBackoffMultiplier is the per-failure linear step (seconds) used
// to space out reconnect attempts after the initial connect sequence gives up.
const ReconnectBackoffMultiplier = 2
