package cli

import (
	"testing"

	"github.com/harun/supportdesk/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolPolicies(t *testing.T) {
	assert.Nil(t, toolPolicies(nil))

	policies := toolPolicies(map[string]config.ToolPolicyConfig{
		"billing":         {Deny: []string{"refund_ticket"}},
		"troubleshoot": {Allow: []string{"get_robot_status"}},
	})
	require.Len(t, policies, 2)

	billing := policies["billing"]
	assert.Equal(t, []string{"*"}, billing.Allow)
	assert.True(t, billing.IsToolAllowed("get_bills"))
	assert.False(t, billing.IsToolAllowed("refund_ticket"))

	troubleshoot := policies["troubleshoot"]
	assert.True(t, troubleshoot.IsToolAllowed("get_robot_status"))
	assert.False(t, troubleshoot.IsToolAllowed("reset_firmware"))
}

func TestNewProvider(t *testing.T) {
	t.Run("no profiles", func(t *testing.T) {
		provider, err := newProvider(config.DefaultConfig(), zerolog.Nop())
		require.NoError(t, err)
		assert.Nil(t, provider)
	})

	t.Run("failover over profiles", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.AI.Profiles = []config.AIProfile{
			{ID: "primary", Provider: "openai", APIKey: "sk-test", Priority: 1},
			{ID: "backup", Provider: "anthropic", APIKey: "sk-ant-test", Priority: 2},
		}
		provider, err := newProvider(cfg, zerolog.Nop())
		require.NoError(t, err)
		require.NotNil(t, provider)
		assert.Equal(t, "failover", provider.Provider())
	})
}

func TestNewEmbedder(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Nil(t, newEmbedder(cfg))

	cfg.Playbook.EmbeddingModel = "text-embedding-3-small"
	assert.Nil(t, newEmbedder(cfg), "no openai profile")

	cfg.AI.Profiles = []config.AIProfile{{ID: "openai", Provider: "openai", APIKey: "sk-test"}}
	embedder := newEmbedder(cfg)
	require.NotNil(t, embedder)
	assert.Equal(t, 1536, embedder.Dimension())
}

func TestNewApp_WiresRouterWithoutProfiles(t *testing.T) {
	isolateEnv(t)
	cfgFile = writeTestConfig(t)
	t.Cleanup(func() { cfgFile = "" })

	a, err := newApp(nil, appOptions{Router: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.router)
	require.NotNil(t, a.sessions)
	require.NotNil(t, a.cleanup)
	assert.False(t, a.cleanup.IsRunning())
}
