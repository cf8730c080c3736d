package config

import "time"

// Config holds all configuration for the application: the routing/resilience
// core's own settings plus the ambient HTTP server, logging, and engineering
// toggles carried for every deployment.
type Config struct {
	Logging           LoggingConfig           `json:"logging" mapstructure:"logging"`
	Server            ServerConfig            `json:"server" mapstructure:"server"`
	Engineering       EngineeringConfig       `json:"engineering" mapstructure:"engineering"`
	SelectionStrategy SelectionStrategyConfig `json:"selectionStrategy" mapstructure:"selectionStrategy"`
	Monitoring        MonitoringConfig        `json:"monitoring" mapstructure:"monitoring"`
	Servers           []UpstreamConfig        `json:"servers" mapstructure:"servers"`
}

// ServerConfig holds the Observability HTTP API's listener settings.
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`

	// TrustProxyHeaders, when true, lets access-log client IP resolution
	// read X-Forwarded-For/X-Real-IP, but only from a RemoteAddr inside
	// TrustedProxyCIDRs.
	TrustProxyHeaders  bool     `json:"trustProxyHeaders" mapstructure:"trustProxyHeaders"`
	TrustedProxyCIDRs  []string `json:"trustedProxyCIDRs" mapstructure:"trustedProxyCIDRs"`
}

// UpstreamConfig is one entry of the `servers[]` config key.
type UpstreamConfig struct {
	Name                  string          `json:"name" mapstructure:"name"`
	Transport             TransportConfig `json:"transport" mapstructure:"transport"`
	Capabilities          []string        `json:"capabilities" mapstructure:"capabilities"`
	Priority              int             `json:"priority" mapstructure:"priority"`
	MaxConcurrentRequests int             `json:"maxConcurrentRequests" mapstructure:"maxConcurrentRequests"`
}

// TransportConfig is a discriminated union: Kind selects which of the
// remaining fields apply (stdio uses Command/Args/EnvAllowlist, sse uses URL).
type TransportConfig struct {
	Kind         string   `json:"kind" mapstructure:"kind"`
	Command      string   `json:"command" mapstructure:"command"`
	Args         []string `json:"args" mapstructure:"args"`
	EnvAllowlist []string `json:"envAllowlist" mapstructure:"envAllowlist"`
	URL          string   `json:"url" mapstructure:"url"`
}

// SelectionStrategyConfig is the `selectionStrategy` config key.
type SelectionStrategyConfig struct {
	Default             string          `json:"default" mapstructure:"default"`
	Fallback            string          `json:"fallback" mapstructure:"fallback"`
	Timeout             time.Duration   `json:"timeout" mapstructure:"timeout"`
	MaxRetries          int             `json:"maxRetries" mapstructure:"maxRetries"`
	HealthCheckInterval time.Duration   `json:"healthCheckInterval" mapstructure:"healthCheckInterval"`
	Timeouts            OperationTimeouts `json:"timeouts" mapstructure:"timeouts"`
}

// OperationTimeouts gives every proxied MCP operation (plus the internal
// reinitialize and reconnect-delay housekeeping operations) its own timeout.
type OperationTimeouts struct {
	ToolsList             time.Duration `json:"toolsList" mapstructure:"toolsList"`
	ToolsCall             time.Duration `json:"toolsCall" mapstructure:"toolsCall"`
	PromptsGet            time.Duration `json:"promptsGet" mapstructure:"promptsGet"`
	PromptsList           time.Duration `json:"promptsList" mapstructure:"promptsList"`
	ResourcesList         time.Duration `json:"resourcesList" mapstructure:"resourcesList"`
	ResourcesRead         time.Duration `json:"resourcesRead" mapstructure:"resourcesRead"`
	ResourceTemplatesList time.Duration `json:"resourceTemplatesList" mapstructure:"resourceTemplatesList"`
	Reinitialize          time.Duration `json:"reinitialize" mapstructure:"reinitialize"`
	ReconnectDelay        time.Duration `json:"reconnectDelay" mapstructure:"reconnectDelay"`
}

// MonitoringConfig is the `monitoring` config key.
type MonitoringConfig struct {
	Enabled               bool            `json:"enabled" mapstructure:"enabled"`
	MetricsRetentionHours int             `json:"metricsRetentionHours" mapstructure:"metricsRetentionHours"`
	AlertThresholds       AlertThresholds `json:"alertThresholds" mapstructure:"alertThresholds"`
}

type AlertThresholds struct {
	ResponseTime     time.Duration `json:"responseTime" mapstructure:"responseTime"`
	ErrorRate        float64       `json:"errorRate" mapstructure:"errorRate"`
	UnhealthyServers float64       `json:"unhealthyServers" mapstructure:"unhealthyServers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	Output string `json:"output" mapstructure:"output"`
}

// EngineeringConfig holds development/debugging configuration
type EngineeringConfig struct {
	ShowNerdStats bool `json:"showNerdStats" mapstructure:"showNerdStats"`
}
