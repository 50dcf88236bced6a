// Package config loads the engine configuration. Config is read from a JSON
// or YAML file with GOLEAN_* environment variable overrides; handler names
// select the pluggable implementations assembled at startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine configuration surface.
type Config struct {
	DataQueueHandler    string `mapstructure:"data-queue-handler"`
	DataFeedHandler     string `mapstructure:"data-feed-handler"`
	ResultHandler       string `mapstructure:"result-handler"`
	RealTimeHandler     string `mapstructure:"real-time-handler"`
	SetupHandler        string `mapstructure:"setup-handler"`
	TransactionHandler  string `mapstructure:"transaction-handler"`
	HistoryProvider     string `mapstructure:"history-provider"`
	CommandQueueHandler string `mapstructure:"command-queue-handler"`
	MapFileProvider     string `mapstructure:"map-file-provider"`
	FactorFileProvider  string `mapstructure:"factor-file-provider"`

	// TimeLoopMaximumMinutes bounds one iteration of the algorithm loop.
	TimeLoopMaximumMinutes int `mapstructure:"algorithm-manager-time-loop-maximum"`

	ForwardConsoleMessages bool   `mapstructure:"forward-console-messages"`
	PluginDirectory        string `mapstructure:"plugin-directory"`
	IgnoreVersionChecks    bool   `mapstructure:"ignore-version-checks"`
	QuandlAuthToken        string `mapstructure:"quandl-auth-token"`
}

// Defaults are the handler names used when the file omits a key.
func defaults(v *viper.Viper) {
	v.SetDefault("data-queue-handler", "live")
	v.SetDefault("data-feed-handler", "backtest")
	v.SetDefault("result-handler", "backtest")
	v.SetDefault("real-time-handler", "backtest")
	v.SetDefault("setup-handler", "console")
	v.SetDefault("transaction-handler", "backtest")
	v.SetDefault("history-provider", "subscription")
	v.SetDefault("command-queue-handler", "empty")
	v.SetDefault("map-file-provider", "local-disk")
	v.SetDefault("factor-file-provider", "local-disk")
	v.SetDefault("algorithm-manager-time-loop-maximum", 10)
	v.SetDefault("forward-console-messages", true)
}

// Load reads the configuration file at path. Environment variables prefixed
// GOLEAN_ override file values, with dashes mapped to underscores.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GOLEAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	defaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// TimeLoopLimit converts the configured maximum into a duration.
func (c *Config) TimeLoopLimit() time.Duration {
	if c.TimeLoopMaximumMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TimeLoopMaximumMinutes) * time.Minute
}

// Validate checks the handler names are present.
func (c *Config) Validate() error {
	if c.DataFeedHandler == "" {
		return fmt.Errorf("data-feed-handler is required")
	}
	if c.ResultHandler == "" {
		return fmt.Errorf("result-handler is required")
	}
	if c.TransactionHandler == "" {
		return fmt.Errorf("transaction-handler is required")
	}
	return nil
}
