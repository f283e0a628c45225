package config

import (
	"fmt"
	"strings"

	"github.com/harun/supportdesk/pkg/supporttools"
	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron expression or descriptor such as @daily.
func (v *Validator) ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateCompaction validates the history threshold and keep count. The
// kept tail must hold a clarification prompt and the customer's answer.
func (v *Validator) ValidateCompaction(threshold, keepRecent int) error {
	if keepRecent < 2 || keepRecent >= threshold {
		return fmt.Errorf("keep_recent must be at least 2 and below threshold (threshold=%d, keep_recent=%d)", threshold, keepRecent)
	}
	return nil
}

// ValidateToolPolicy checks that a policy names a known capability and only
// tools that capability owns.
func (v *Validator) ValidateToolPolicy(capability string, policy ToolPolicyConfig) error {
	c, ok := supporttools.Lookup(capability)
	if !ok {
		return fmt.Errorf("unknown capability: %s", capability)
	}
	for _, name := range append(append([]string(nil), policy.Allow...), policy.Deny...) {
		if name == "*" {
			continue
		}
		if !contains(c.Tools, name) {
			return fmt.Errorf("tool %s does not belong to capability %s", name, capability)
		}
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}
	if err := v.ValidateModel(cfg.AI.Model); err != nil {
		errors = append(errors, fmt.Errorf("ai: %w", err))
	}
	if err := v.ValidateTemperature(cfg.AI.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("ai: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.AI.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("ai: %w", err))
	}

	if cfg.Router.MaxWorkerTurns <= 0 {
		errors = append(errors, fmt.Errorf("router.max_worker_turns must be positive"))
	}
	if err := v.ValidateCompaction(cfg.Compaction.Threshold, cfg.Compaction.KeepRecent); err != nil {
		errors = append(errors, fmt.Errorf("compaction: %w", err))
	}

	if cfg.Sessions.CleanupSchedule != "" {
		if err := v.ValidateSchedule(cfg.Sessions.CleanupSchedule); err != nil {
			errors = append(errors, fmt.Errorf("sessions: %w", err))
		}
	}

	for capability, policy := range cfg.Tools.Policies {
		if err := v.ValidateToolPolicy(capability, policy); err != nil {
			errors = append(errors, fmt.Errorf("tools.policies: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
