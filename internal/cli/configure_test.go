package cli

import (
	"os"
	"testing"

	"github.com/harun/supportdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfigureFlags(t *testing.T) {
	t.Cleanup(func() {
		configureProvider = ""
		configureAPIKey = ""
		configureModel = ""
		configurePlaybookDir = ""
		configureEmbeddingModel = ""
		configureMetricsAddr = ""
	})
}

func TestConfigureCommand(t *testing.T) {
	isolateEnv(t)
	resetConfigureFlags(t)
	path := writeTestConfig(t)

	out, err := executeCommand(t, "configure",
		"--config", path,
		"--provider", "openai",
		"--api-key", "sk-test-key",
		"--model", "gpt-4o",
		"--metrics-addr", ":9191",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.AI.Profiles, 1)
	assert.Equal(t, "openai", cfg.AI.Profiles[0].ID)
	assert.Equal(t, "sk-test-key", cfg.AI.Profiles[0].APIKey)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, ":9191", cfg.Metrics.Addr)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestConfigureCommand_ProviderNeedsKey(t *testing.T) {
	isolateEnv(t)
	resetConfigureFlags(t)
	path := writeTestConfig(t)

	_, err := executeCommand(t, "configure", "--config", path, "--provider", "anthropic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--api-key")
}

func TestUpsertProfile(t *testing.T) {
	profiles := upsertProfile(nil, "openai", "sk-1")
	require.Len(t, profiles, 1)
	assert.Equal(t, 1, profiles[0].Priority)

	profiles = upsertProfile(profiles, "anthropic", "sk-ant-1")
	require.Len(t, profiles, 2)
	assert.Equal(t, 2, profiles[1].Priority)

	profiles = upsertProfile(profiles, "openai", "sk-2")
	require.Len(t, profiles, 2)
	assert.Equal(t, "sk-2", profiles[0].APIKey)
	assert.Equal(t, 1, profiles[0].Priority)
}

func TestFileProfiles(t *testing.T) {
	kept := fileProfiles([]config.AIProfile{
		{ID: "openai-env", Provider: "openai", APIKey: "sk-env"},
		{ID: "anthropic", Provider: "anthropic", APIKey: "sk-ant-file"},
	})
	require.Len(t, kept, 1)
	assert.Equal(t, "anthropic", kept[0].ID)
}
