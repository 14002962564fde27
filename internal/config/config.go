// Package config loads and validates the bot's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"threadpilot/internal/schedule"
)

type Config struct {
	Slack    SlackConfig    `yaml:"slack"`
	LLM      LLMConfig      `yaml:"llm"`
	Approval ApprovalConfig `yaml:"approval"`
	Session  SessionConfig  `yaml:"session"`
	History  HistoryConfig  `yaml:"history"`
	Tools    ToolsConfig    `yaml:"tools"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`

	Schedules []schedule.Entry `yaml:"schedules,omitempty"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
	// AllowedUsers restricts who may talk to the bot and click its buttons.
	// Empty means every workspace member.
	AllowedUsers []string `yaml:"allowed_users,omitempty"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
	MaxTurns    int     `yaml:"max_turns,omitempty"`
}

type ApprovalConfig struct {
	// DeadlineSeconds is how long a prompt waits for a click before it
	// resolves as a timeout. It must stay below ProtocolDeadlineSeconds
	// so the decision lands before the surrounding request gives up.
	DeadlineSeconds         int `yaml:"deadline_seconds"`
	ProtocolDeadlineSeconds int `yaml:"protocol_deadline_seconds"`
	// AllowedTools skip the gate entirely (read-only tools, typically).
	AllowedTools []string `yaml:"allowed_tools,omitempty"`
}

type SessionConfig struct {
	ReapDelaySeconds int `yaml:"reap_delay_seconds"`
}

type HistoryConfig struct {
	RedisURL    string `yaml:"redis_url,omitempty"`
	TTLHours    int    `yaml:"ttl_hours,omitempty"`
	MaxMessages int    `yaml:"max_messages,omitempty"`
}

type ToolsConfig struct {
	Workdir string `yaml:"workdir,omitempty"`
}

type MCPConfig struct {
	ConfigPath string `yaml:"config_path,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	// Development switches zap to its console encoder.
	Development bool `yaml:"development,omitempty"`
}

func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.LLM.Provider) == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.MaxTurns <= 0 {
		c.LLM.MaxTurns = 40
	}
	if c.Approval.DeadlineSeconds <= 0 {
		c.Approval.DeadlineSeconds = 55
	}
	if c.Approval.ProtocolDeadlineSeconds <= 0 {
		c.Approval.ProtocolDeadlineSeconds = 60
	}
	if c.Session.ReapDelaySeconds <= 0 {
		c.Session.ReapDelaySeconds = 300
	}
	if c.History.TTLHours <= 0 {
		c.History.TTLHours = 7 * 24
	}
	if c.History.MaxMessages <= 0 {
		c.History.MaxMessages = 400
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Slack.BotToken) == "" {
		return errors.New("slack.bot_token is required")
	}
	if strings.TrimSpace(c.Slack.AppToken) == "" {
		return errors.New("slack.app_token is required")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be anthropic or openai, got %q", c.LLM.Provider)
	}
	if c.Approval.DeadlineSeconds >= c.Approval.ProtocolDeadlineSeconds {
		return fmt.Errorf("approval.deadline_seconds (%d) must be below approval.protocol_deadline_seconds (%d)",
			c.Approval.DeadlineSeconds, c.Approval.ProtocolDeadlineSeconds)
	}
	return nil
}

func (c ApprovalConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineSeconds) * time.Second
}

func (c SessionConfig) ReapDelay() time.Duration {
	return time.Duration(c.ReapDelaySeconds) * time.Second
}

func (c HistoryConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}
