package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.SelectionStrategy.Default != "adaptive" {
		t.Errorf("Expected default strategy 'adaptive', got %s", cfg.SelectionStrategy.Default)
	}
	if cfg.SelectionStrategy.Fallback != "quality" {
		t.Errorf("Expected fallback strategy 'quality', got %s", cfg.SelectionStrategy.Fallback)
	}
	if cfg.SelectionStrategy.Timeout != 5000*time.Millisecond {
		t.Errorf("Expected timeout 5000ms, got %v", cfg.SelectionStrategy.Timeout)
	}
	if cfg.SelectionStrategy.MaxRetries != 2 {
		t.Errorf("Expected max retries 2, got %d", cfg.SelectionStrategy.MaxRetries)
	}
	if cfg.SelectionStrategy.HealthCheckInterval != 30*time.Second {
		t.Errorf("Expected health check interval 30s, got %v", cfg.SelectionStrategy.HealthCheckInterval)
	}

	if !cfg.Monitoring.Enabled {
		t.Error("Expected monitoring enabled by default")
	}
	if cfg.Monitoring.MetricsRetentionHours != 24 {
		t.Errorf("Expected metrics retention 24h, got %d", cfg.Monitoring.MetricsRetentionHours)
	}
	if cfg.Monitoring.AlertThresholds.ResponseTime != 5000*time.Millisecond {
		t.Errorf("Expected response time threshold 5000ms, got %v", cfg.Monitoring.AlertThresholds.ResponseTime)
	}
	if cfg.Monitoring.AlertThresholds.ErrorRate != 0.1 {
		t.Errorf("Expected error rate threshold 0.1, got %v", cfg.Monitoring.AlertThresholds.ErrorRate)
	}
	if cfg.Monitoring.AlertThresholds.UnhealthyServers != 0.5 {
		t.Errorf("Expected unhealthy servers threshold 0.5, got %v", cfg.Monitoring.AlertThresholds.UnhealthyServers)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected log format 'json', got %s", cfg.Logging.Format)
	}

	if cfg.Engineering.ShowNerdStats != false {
		t.Error("Expected ShowNerdStats to be false by default")
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected default host %s, got %s", DefaultHost, cfg.Server.Host)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"MERIDIAN_SERVER_PORT":   "8080",
		"MERIDIAN_SERVER_HOST":   "0.0.0.0",
		"MERIDIAN_LOGGING_LEVEL": "debug",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env var, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 from env var, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
}

func TestConfigTypes(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ReadTimeout.String() == "" {
		t.Error("ReadTimeout should be a valid duration")
	}
	if cfg.SelectionStrategy.Timeouts.ToolsCall == 0 {
		t.Error("ToolsCall timeout should be populated by default")
	}
}

// TestLoadConfig_YAMLFallback exercises MERIDIAN_CONFIG_FILE pointed at a
// YAML file: viper picks the decoder by extension, so this is the same
// Load path as config.json, just a different wire format on disk.
func TestLoadConfig_YAMLFallback(t *testing.T) {
	fixture := map[string]any{
		"server": map[string]any{
			"host": "127.0.0.1",
			"port": 9191,
		},
		"logging": map[string]any{
			"level": "warn",
		},
	}
	raw, err := yaml.Marshal(fixture)
	if err != nil {
		t.Fatalf("marshal yaml fixture: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write yaml fixture: %v", err)
	}

	os.Setenv("MERIDIAN_CONFIG_FILE", path)
	defer os.Unsetenv("MERIDIAN_CONFIG_FILE")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load from yaml file failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 from yaml fixture, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191 from yaml fixture, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn from yaml fixture, got %s", cfg.Logging.Level)
	}
}

func TestUpstreamConfig_TransportKinds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Servers = []UpstreamConfig{
		{
			Name: "local-tools",
			Transport: TransportConfig{
				Kind:         "stdio",
				Command:      "mcp-server",
				Args:         []string{"--flag"},
				EnvAllowlist: []string{"PATH"},
			},
			Priority: 100,
		},
		{
			Name: "remote-tools",
			Transport: TransportConfig{
				Kind: "sse",
				URL:  "https://example.com/mcp",
			},
			Priority: 50,
		},
	}

	if len(cfg.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(cfg.Servers))
	}
	if cfg.Servers[0].Transport.Kind != "stdio" {
		t.Errorf("expected stdio transport, got %s", cfg.Servers[0].Transport.Kind)
	}
	if cfg.Servers[1].Transport.Kind != "sse" {
		t.Errorf("expected sse transport, got %s", cfg.Servers[1].Transport.Kind)
	}
}
