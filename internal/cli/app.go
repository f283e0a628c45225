package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/harun/supportdesk/internal/config"
	"github.com/harun/supportdesk/internal/logger"
	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/harun/supportdesk/pkg/compaction"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/playbook"
	"github.com/harun/supportdesk/pkg/router"
	"github.com/harun/supportdesk/pkg/session"
	"github.com/harun/supportdesk/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// appOptions selects which parts of the runtime a command needs.
type appOptions struct {
	// Console mirrors logs to stderr. Interactive chat keeps it off so log
	// lines do not interleave with the conversation.
	Console bool
	// Router builds the language model, playbook index and router.
	Router bool
	// Playbook opens the playbook index without the router.
	Playbook bool
	// Cleanup starts the scheduled session cleanup.
	Cleanup bool
	// Watch marks the playbook index dirty on file changes.
	Watch bool
	// PlaybookDir overrides the configured playbook directory.
	PlaybookDir string
}

// app holds the runtime wired from the configuration.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	sessions *session.SessionManager
	cleanup  *session.Cleanup
	playbook *playbook.Index
	router   *router.Router
	metrics  *http.Server
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd != nil {
		if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
			cfg.Logging.Level = logLevel
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command, opts appOptions) (a *app, err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if opts.PlaybookDir != "" {
		cfg.Playbook.Dir = opts.PlaybookDir
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   opts.Console || cfg.Logging.Console,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if err := tracing.InitOpenTelemetry("supportdesk"); err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	}
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Audit log disabled")
	}
	a.startMetrics()

	a.sessions, err = session.New(cfg.Sessions.Dir)
	if err != nil {
		return a, fmt.Errorf("failed to open session store: %w", err)
	}
	a.cleanup, err = session.NewCleanup(a.sessions, session.CleanupConfig{
		Schedule:   cfg.Sessions.CleanupSchedule,
		MaxAge:     time.Duration(cfg.Sessions.MaxAgeHours) * time.Hour,
		MaxEntries: cfg.Sessions.MaxEntries,
	})
	if err != nil {
		return a, err
	}
	if opts.Cleanup {
		if err := a.cleanup.Start(); err != nil {
			return a, fmt.Errorf("failed to start session cleanup: %w", err)
		}
	}

	if opts.Router || opts.Playbook {
		a.playbook, err = playbook.NewIndex(playbook.Config{
			Dir:      cfg.Playbook.Dir,
			DBPath:   cfg.Playbook.DBPath,
			TopK:     cfg.Playbook.TopK,
			Watch:    opts.Watch || cfg.Playbook.Watch,
			Embedder: newEmbedder(cfg),
			Logger:   log.GetZerolog(),
		})
		if err != nil {
			if !opts.Router {
				return a, fmt.Errorf("failed to open playbook index: %w", err)
			}
			log.Warn().Err(err).Msg("Playbook retrieval disabled")
			a.playbook = nil
		}
	}

	if opts.Router {
		if err := a.buildRouter(); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (a *app) buildRouter() error {
	cfg := a.cfg
	zl := a.log.GetZerolog()

	provider, err := newProvider(cfg, zl)
	if err != nil {
		return err
	}
	if provider == nil {
		a.log.Warn().Msg("No AI profiles configured")
	}

	var summarizer compaction.Summarizer
	if provider != nil {
		summarizer = compaction.NewLLMSummarizer(provider, cfg.AI.Model)
	}
	compactor, err := compaction.New(compaction.Config{
		Threshold:  cfg.Compaction.Threshold,
		KeepRecent: cfg.Compaction.KeepRecent,
		Logger:     zl,
	}, summarizer)
	if err != nil {
		return err
	}

	rc := router.Config{
		Provider:         provider,
		Model:            cfg.AI.Model,
		Temperature:      cfg.AI.Temperature,
		MaxTokens:        cfg.AI.MaxTokens,
		MaxWorkerTurns:   cfg.Router.MaxWorkerTurns,
		ToolTimeout:      time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		LLMAnnouncements: cfg.Router.LLMAnnouncements,
		Store:            router.NewSessionStore(a.sessions),
		Compactor:        compactor,
		ToolPolicies:     toolPolicies(cfg.Tools.Policies),
		Logger:           zl,
	}
	if a.playbook != nil {
		rc.Retriever = a.playbook
	}

	a.router, err = router.New(rc)
	return err
}

// newProvider builds a failover provider over the configured profiles. It
// returns a nil provider when no profile exists.
func newProvider(cfg *config.Config, zl zerolog.Logger) (llm.Provider, error) {
	if len(cfg.AI.Profiles) == 0 {
		return nil, nil
	}
	profiles := make([]llm.Profile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, llm.Profile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}
	failover, err := llm.NewFailover(profiles, llm.FailoverConfig{Logger: zl})
	if err != nil {
		if errors.Is(err, llm.ErrNoProfiles) {
			return nil, nil
		}
		return nil, err
	}
	return failover, nil
}

// newEmbedder enables vector search when an embedding model and an OpenAI
// profile are configured.
func newEmbedder(cfg *config.Config) playbook.Embedder {
	if cfg.Playbook.EmbeddingModel == "" {
		return nil
	}
	for _, p := range cfg.AI.Profiles {
		if p.Provider == "openai" && p.APIKey != "" {
			return playbook.NewOpenAIEmbedder(p.APIKey, cfg.Playbook.EmbeddingModel)
		}
	}
	return nil
}

// toolPolicies converts configured policies. An empty allow-list keeps every
// tool of the capability.
func toolPolicies(policies map[string]config.ToolPolicyConfig) map[string]*toolexecutor.ToolPolicy {
	if len(policies) == 0 {
		return nil
	}
	out := make(map[string]*toolexecutor.ToolPolicy, len(policies))
	for capability, p := range policies {
		allow := p.Allow
		if len(allow) == 0 {
			allow = []string{"*"}
		}
		out[capability] = &toolexecutor.ToolPolicy{Allow: allow, Deny: p.Deny}
	}
	return out
}

func (a *app) startMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	a.metrics = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", a.cfg.Metrics.Addr).Msg("Metrics server stopped")
		}
	}()
	a.log.Info().Str("addr", a.cfg.Metrics.Addr).Msg("Metrics server listening")
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	if a == nil {
		return
	}
	if a.router != nil {
		_ = a.router.Close()
	}
	if a.playbook != nil {
		_ = a.playbook.Close()
	}
	if a.cleanup != nil && a.cleanup.IsRunning() {
		_ = a.cleanup.Stop()
	}
	if a.sessions != nil {
		_ = a.sessions.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	_ = tracing.ShutdownOpenTelemetry(ctx)
	_ = observability.GetAuditLogger().Close()
	if a.log != nil {
		_ = a.log.Close()
	}
}
