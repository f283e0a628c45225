package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/harun/supportdesk/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureProvider       string
	configureAPIKey         string
	configureModel          string
	configurePlaybookDir    string
	configureEmbeddingModel string
	configureMetricsAddr    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file",
	Long: `Create or update the configuration file from flags.

Passing --provider with --api-key adds (or replaces) the AI profile for that
provider. Other flags update the matching setting and leave the rest of the
file untouched.`,
	Example: `  supportdesk configure --provider openai --api-key sk-... --model gpt-4o-mini
  supportdesk configure --playbook-dir ./playbooks --embedding-model text-embedding-3-small`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "AI provider (anthropic, openai)")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "API key for --provider")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model name")
	configureCmd.Flags().StringVar(&configurePlaybookDir, "playbook-dir", "", "directory holding markdown playbooks")
	configureCmd.Flags().StringVar(&configureEmbeddingModel, "embedding-model", "", "OpenAI embedding model for vector search")
	configureCmd.Flags().StringVar(&configureMetricsAddr, "metrics-addr", "", "address for the Prometheus endpoint, e.g. :9090")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.AI.Profiles = fileProfiles(cfg.AI.Profiles)

	validator := config.NewValidator()
	out := cmd.OutOrStdout()

	if configureProvider != "" || configureAPIKey != "" {
		if configureProvider == "" || configureAPIKey == "" {
			return fmt.Errorf("--provider and --api-key must be given together")
		}
		provider := strings.ToLower(configureProvider)
		if err := validator.ValidateAPIKey(configureAPIKey, provider); err != nil {
			fmt.Fprintf(out, "%s %v\n", color.YellowString("!"), err)
		}
		cfg.AI.Profiles = upsertProfile(cfg.AI.Profiles, provider, configureAPIKey)
	}
	if configureModel != "" {
		if err := validator.ValidateModel(configureModel); err != nil {
			return err
		}
		cfg.AI.Model = configureModel
	}
	if configurePlaybookDir != "" {
		cfg.Playbook.Dir = configurePlaybookDir
	}
	if configureEmbeddingModel != "" {
		cfg.Playbook.EmbeddingModel = configureEmbeddingModel
	}
	if configureMetricsAddr != "" {
		cfg.Metrics.Addr = configureMetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "%s Configuration saved to: %s\n", color.GreenString("✓"), loader.GetConfigPath())
	if len(cfg.AI.Profiles) == 0 {
		fmt.Fprintf(out, "%s No AI profile configured; set one with --provider and --api-key\n", color.YellowString("!"))
	}
	fmt.Fprintln(out, "\nStart a conversation with: supportdesk chat")
	return nil
}

// fileProfiles drops profiles synthesized from environment variables so
// they are never written to disk.
func fileProfiles(profiles []config.AIProfile) []config.AIProfile {
	kept := make([]config.AIProfile, 0, len(profiles))
	for _, p := range profiles {
		if strings.HasSuffix(p.ID, "-env") {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// upsertProfile replaces the profile for provider or appends a new one with
// the lowest priority.
func upsertProfile(profiles []config.AIProfile, provider, apiKey string) []config.AIProfile {
	for i := range profiles {
		if profiles[i].ID == provider {
			profiles[i].Provider = provider
			profiles[i].APIKey = apiKey
			return profiles
		}
	}
	priority := 1
	for _, p := range profiles {
		if p.Priority >= priority {
			priority = p.Priority + 1
		}
	}
	return append(profiles, config.AIProfile{ID: provider, Provider: provider, APIKey: apiKey, Priority: priority})
}
