package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix       = "SUPPORTDESK"
	defaultDirName  = ".supportdesk"
	defaultFileName = "supportdesk.json"

	anthropicDefaultModel = "claude-3-5-haiku-latest"
)

// envKeys are the scalar settings that can be overridden with
// SUPPORTDESK_<SECTION>_<KEY> variables.
var envKeys = []string{
	"ai.model",
	"ai.temperature",
	"ai.max_tokens",
	"router.max_worker_turns",
	"router.llm_announcements",
	"compaction.threshold",
	"compaction.keep_recent",
	"playbook.dir",
	"playbook.db_path",
	"playbook.top_k",
	"playbook.embedding_model",
	"playbook.watch",
	"sessions.dir",
	"sessions.cleanup_schedule",
	"sessions.max_age_hours",
	"sessions.max_entries",
	"tools.timeout_seconds",
	"logging.level",
	"logging.file",
	"logging.console",
	"metrics.addr",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file if it exists, applies environment overrides on
// top of DefaultConfig, and fills derived paths.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvProfiles(cfg)

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.Playbook.Dir == "" {
		cfg.Playbook.Dir = filepath.Join(cfg.DataDir, "playbooks")
	}
	if cfg.Playbook.DBPath == "" {
		cfg.Playbook.DBPath = filepath.Join(cfg.DataDir, "playbook.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "supportdesk.log")
	}

	return cfg, nil
}

// applyEnvProfiles synthesizes AI profiles from the providers' conventional
// API key variables when the file configures none.
func applyEnvProfiles(cfg *Config) {
	if len(cfg.AI.Profiles) > 0 {
		return
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{ID: "openai-env", Provider: "openai", APIKey: key, Priority: 1})
	}
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{ID: "anthropic-env", Provider: "anthropic", APIKey: key, Priority: 2})
		if len(cfg.AI.Profiles) == 1 && cfg.AI.Model == DefaultConfig().AI.Model {
			cfg.AI.Model = anthropicDefaultModel
		}
	}
}

// Save writes the configuration as JSON, readable only by the owner.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("router", cfg.Router)
	v.Set("compaction", cfg.Compaction)
	v.Set("playbook", cfg.Playbook)
	v.Set("sessions", cfg.Sessions)
	v.Set("tools", cfg.Tools)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	if err := os.Chmod(configPath, 0600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
