package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 6, cfg.Router.MaxWorkerTurns)
	assert.False(t, cfg.Router.LLMAnnouncements)
	assert.Equal(t, 10, cfg.Compaction.Threshold)
	assert.Equal(t, 4, cfg.Compaction.KeepRecent)
	assert.Equal(t, 1, cfg.Playbook.TopK)
	assert.Equal(t, "@daily", cfg.Sessions.CleanupSchedule)
	assert.Equal(t, 720, cfg.Sessions.MaxAgeHours)
	assert.Equal(t, 500, cfg.Sessions.MaxEntries)
	assert.Equal(t, 30, cfg.Tools.TimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.AI.Profiles)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{
			{ID: "test-profile", Provider: "anthropic", APIKey: "sk-ant-test123", Priority: 1},
		}
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "profile without id",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{Provider: "openai", APIKey: "sk-x"}}
			},
			wantErr: "ID is required",
		},
		{
			name: "profile without key",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{ID: "p", Provider: "openai"}}
			},
			wantErr: "api_key is required",
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{ID: "p", Provider: "gemini", APIKey: "k"}}
			},
			wantErr: "invalid provider gemini",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.AI.Temperature = 1.5 },
			wantErr: "ai.temperature",
		},
		{
			name:    "zero worker turns",
			mutate:  func(c *Config) { c.Router.MaxWorkerTurns = 0 },
			wantErr: "max_worker_turns",
		},
		{
			name:    "keep_recent not below threshold",
			mutate:  func(c *Config) { c.Compaction.KeepRecent = 10 },
			wantErr: "keep_recent",
		},
		{
			name:    "keep_recent drops the clarification answer",
			mutate:  func(c *Config) { c.Compaction.KeepRecent = 1 },
			wantErr: "at least 2",
		},
		{
			name:    "bad cron schedule",
			mutate:  func(c *Config) { c.Sessions.CleanupSchedule = "every day" },
			wantErr: "cleanup_schedule",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"max_worker_turns": 6`)
	assert.Contains(t, s, `"keep_recent": 4`)
}
