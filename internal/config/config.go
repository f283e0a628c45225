package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config represents the main supportdesk configuration
type Config struct {
	// AI providers and model settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Router
	Router RouterConfig `json:"router" mapstructure:"router"`

	// History compaction
	Compaction CompactionConfig `json:"compaction" mapstructure:"compaction"`

	// Playbook retrieval
	Playbook PlaybookConfig `json:"playbook" mapstructure:"playbook"`

	// Conversation storage
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles    []AIProfile `json:"profiles" mapstructure:"profiles"`
	Model       string      `json:"model" mapstructure:"model"`
	Temperature float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int         `json:"max_tokens" mapstructure:"max_tokens"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// RouterConfig controls task dispatching.
type RouterConfig struct {
	MaxWorkerTurns   int  `json:"max_worker_turns" mapstructure:"max_worker_turns"`
	LLMAnnouncements bool `json:"llm_announcements" mapstructure:"llm_announcements"`
}

// CompactionConfig bounds conversation history.
type CompactionConfig struct {
	Threshold  int `json:"threshold" mapstructure:"threshold"`
	KeepRecent int `json:"keep_recent" mapstructure:"keep_recent"`
}

// PlaybookConfig locates the support playbooks and their index.
type PlaybookConfig struct {
	Dir            string `json:"dir" mapstructure:"dir"`
	DBPath         string `json:"db_path" mapstructure:"db_path"`
	TopK           int    `json:"top_k" mapstructure:"top_k"`
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"` // empty disables vector search
	Watch          bool   `json:"watch" mapstructure:"watch"`
}

// SessionsConfig holds conversation storage and cleanup settings
type SessionsConfig struct {
	Dir             string `json:"dir" mapstructure:"dir"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	MaxAgeHours     int    `json:"max_age_hours" mapstructure:"max_age_hours"`
	MaxEntries      int    `json:"max_entries" mapstructure:"max_entries"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	// Policies narrows a capability's tool allow-list. Keys are capability names.
	Policies map[string]ToolPolicyConfig `json:"policies" mapstructure:"policies"`
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Console   bool   `json:"console" mapstructure:"console"`
}

// MetricsConfig holds the Prometheus endpoint address; empty disables it.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles:    []AIProfile{},
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Router: RouterConfig{
			MaxWorkerTurns:   6,
			LLMAnnouncements: false,
		},
		Compaction: CompactionConfig{
			Threshold:  10,
			KeepRecent: 4,
		},
		Playbook: PlaybookConfig{
			TopK: 1,
		},
		Sessions: SessionsConfig{
			CleanupSchedule: "@daily",
			MaxAgeHours:     720,
			MaxEntries:      500,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
			Policies:       map[string]ToolPolicyConfig{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

var validProviders = []string{"anthropic", "openai"}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if !contains(validProviders, profile.Provider) {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: %s)", profile.ID, profile.Provider, strings.Join(validProviders, ", "))
		}
	}

	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("ai.temperature must be between 0 and 1, got %g", c.AI.Temperature)
	}
	if c.Router.MaxWorkerTurns <= 0 {
		return fmt.Errorf("router.max_worker_turns must be positive, got %d", c.Router.MaxWorkerTurns)
	}
	if c.Compaction.KeepRecent < 2 || c.Compaction.KeepRecent >= c.Compaction.Threshold {
		return fmt.Errorf("compaction.keep_recent must be at least 2 and below threshold (threshold=%d, keep_recent=%d)",
			c.Compaction.Threshold, c.Compaction.KeepRecent)
	}
	if c.Playbook.TopK <= 0 {
		return fmt.Errorf("playbook.top_k must be positive, got %d", c.Playbook.TopK)
	}
	if c.Sessions.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Sessions.CleanupSchedule); err != nil {
			return fmt.Errorf("sessions.cleanup_schedule: %w", err)
		}
	}
	if c.Sessions.MaxAgeHours < 0 || c.Sessions.MaxEntries < 0 {
		return fmt.Errorf("sessions.max_age_hours and sessions.max_entries must be >= 0")
	}
	if c.Tools.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.timeout_seconds must be >= 0")
	}

	return NewValidator().ValidateLogLevel(c.Logging.Level)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
