// Package config loads runtime settings from the environment and an optional
// config file. Environment variables win over file values, file values win
// over defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither the environment nor the config file sets a value.
const (
	DefaultDBPath          = "cronhub.db"
	DefaultPort            = 8787
	DefaultSubagentTimeout = 300 * time.Second
	DefaultSubagentTurns   = 10
	DefaultModel           = "claude-sonnet-4-20250514"
	DefaultTickInterval    = 60 * time.Second
	DefaultMaxConcurrent   = 5
)

// Config carries every tunable the process reads at startup. Fields map to
// environment variables of the same name in SCREAMING_SNAKE_CASE.
type Config struct {
	// DBPath is the SQLite database file (CRONHUB_DB_PATH).
	DBPath string
	// Port is the HTTP listen port (PORT).
	Port int
	// LogLevel is one of debug, info, warn, error (LOG_LEVEL).
	LogLevel string

	// AnthropicAPIKey authenticates direct model calls (ANTHROPIC_API_KEY).
	AnthropicAPIKey string
	// Model is the default model id (CLAUDE_MODEL).
	Model string
	// CLIPath overrides claude binary lookup (CLAUDE_CLI_PATH).
	CLIPath string

	// SubagentDefaultMode is mcp, cli or auto (SUBAGENT_DEFAULT_MODE).
	SubagentDefaultMode string
	// SubagentTimeout bounds a single subagent run (SUBAGENT_TIMEOUT, seconds).
	SubagentTimeout time.Duration
	// SubagentMaxTurns bounds agentic loop iterations (SUBAGENT_MAX_TURNS).
	SubagentMaxTurns int

	// ToolServerConfig is an optional YAML registry file (TOOL_SERVER_CONFIG).
	ToolServerConfig string

	// TickInterval is the scheduler poll period. Not exposed via env; tests
	// shorten it through the struct directly.
	TickInterval time.Duration
	// MaxConcurrent caps simultaneously running tasks.
	MaxConcurrent int
}

// envBindings maps viper keys to the environment variables the process reads.
var envBindings = map[string]string{
	"db_path":               "CRONHUB_DB_PATH",
	"port":                  "PORT",
	"log_level":             "LOG_LEVEL",
	"anthropic_api_key":     "ANTHROPIC_API_KEY",
	"claude_model":          "CLAUDE_MODEL",
	"claude_cli_path":       "CLAUDE_CLI_PATH",
	"subagent_default_mode": "SUBAGENT_DEFAULT_MODE",
	"subagent_timeout":      "SUBAGENT_TIMEOUT",
	"subagent_max_turns":    "SUBAGENT_MAX_TURNS",
	"tool_server_config":    "TOOL_SERVER_CONFIG",
}

// Load builds the config from defaults, an optional config file and the
// environment. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("claude_model", DefaultModel)
	v.SetDefault("subagent_default_mode", "auto")
	v.SetDefault("subagent_timeout", int(DefaultSubagentTimeout.Seconds()))
	v.SetDefault("subagent_max_turns", DefaultSubagentTurns)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		DBPath:              v.GetString("db_path"),
		Port:                v.GetInt("port"),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
		AnthropicAPIKey:     v.GetString("anthropic_api_key"),
		Model:               v.GetString("claude_model"),
		CLIPath:             v.GetString("claude_cli_path"),
		SubagentDefaultMode: strings.ToLower(v.GetString("subagent_default_mode")),
		SubagentTimeout:     time.Duration(v.GetInt("subagent_timeout")) * time.Second,
		SubagentMaxTurns:    v.GetInt("subagent_max_turns"),
		ToolServerConfig:    v.GetString("tool_server_config"),
		TickInterval:        DefaultTickInterval,
		MaxConcurrent:       DefaultMaxConcurrent,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SubagentDefaultMode {
	case "auto", "mcp", "cli":
	default:
		return fmt.Errorf("invalid SUBAGENT_DEFAULT_MODE %q: want auto, mcp or cli", c.SubagentDefaultMode)
	}
	if c.SubagentTimeout <= 0 {
		return fmt.Errorf("SUBAGENT_TIMEOUT must be positive, got %s", c.SubagentTimeout)
	}
	if c.SubagentMaxTurns <= 0 {
		return fmt.Errorf("SUBAGENT_MAX_TURNS must be positive, got %d", c.SubagentMaxTurns)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}
