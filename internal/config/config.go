package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 19841
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with the documented defaults:
// adaptive/quality selection, 5000ms timeout, 2 retries, 30s health interval,
// 24h metrics retention, thresholds 5000ms/0.1/0.5.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			TrustProxyHeaders: false,
			TrustedProxyCIDRs: nil,
		},
		SelectionStrategy: SelectionStrategyConfig{
			Default:             "adaptive",
			Fallback:            "quality",
			Timeout:             5000 * time.Millisecond,
			MaxRetries:          2,
			HealthCheckInterval: 30 * time.Second,
			Timeouts: OperationTimeouts{
				ToolsList:             5000 * time.Millisecond,
				ToolsCall:             5000 * time.Millisecond,
				PromptsGet:            5000 * time.Millisecond,
				PromptsList:           5000 * time.Millisecond,
				ResourcesList:         5000 * time.Millisecond,
				ResourcesRead:         5000 * time.Millisecond,
				ResourceTemplatesList: 5000 * time.Millisecond,
				Reinitialize:          5000 * time.Millisecond,
				ReconnectDelay:        2500 * time.Millisecond,
			},
		},
		Monitoring: MonitoringConfig{
			Enabled:               true,
			MetricsRetentionHours: 24,
			AlertThresholds: AlertThresholds{
				ResponseTime:     5000 * time.Millisecond,
				ErrorRate:        0.1,
				UnhealthyServers: 0.5,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Servers: []UpstreamConfig{},
	}
}

// Load loads configuration from config.json in the working directory
// (falling back to environment variables prefixed MERIDIAN_), and wires
// onConfigChange to fire (debounced) whenever the file is edited on disk.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("MERIDIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("MERIDIAN_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if ext := filepath.Ext(configFile); ext != "" {
				viper.SetConfigType(ext[1:])
			}
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			// some filesystems fire the event before the write finishes
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}
