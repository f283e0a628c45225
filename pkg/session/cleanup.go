package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCleanupAge      = 30 * 24 * time.Hour
	DefaultMaxEntries      = 500
	DefaultCleanupSchedule = "@daily"
)

// CleanupConfig controls retention.
type CleanupConfig struct {
	// Schedule is a standard cron expression or descriptor such as "@daily".
	Schedule   string
	MaxAge     time.Duration
	MaxEntries int
}

// CleanupReport summarises one cleanup pass.
type CleanupReport struct {
	Deleted []string
	Pruned  []string
}

// Cleanup deletes idle conversations and trims long histories on a cron
// schedule.
type Cleanup struct {
	manager *SessionManager
	cfg     CleanupConfig

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewCleanup validates the schedule and applies defaults.
func NewCleanup(manager *SessionManager, cfg CleanupConfig) (*Cleanup, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultCleanupSchedule
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultCleanupAge
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Schedule, err)
	}

	return &Cleanup{manager: manager, cfg: cfg}, nil
}

// Start schedules cleanup passes.
func (c *Cleanup) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler != nil {
		return fmt.Errorf("cleanup is already running")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(c.cfg.Schedule, func() {
		if _, err := c.RunNow(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to clean up conversations")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	scheduler.Start()
	c.scheduler = scheduler

	log.Info().
		Str("schedule", c.cfg.Schedule).
		Dur("max_age", c.cfg.MaxAge).
		Int("max_entries", c.cfg.MaxEntries).
		Msg("Session cleanup started")

	return nil
}

// Stop waits for a running pass and stops the schedule.
func (c *Cleanup) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler == nil {
		return fmt.Errorf("cleanup is not running")
	}
	<-c.scheduler.Stop().Done()
	c.scheduler = nil

	log.Info().Msg("Session cleanup stopped")
	return nil
}

// IsRunning reports whether a schedule is active.
func (c *Cleanup) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler != nil
}

// RunNow performs one cleanup pass.
func (c *Cleanup) RunNow(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	ids, err := c.manager.ListIDs()
	if err != nil {
		return report, fmt.Errorf("failed to list conversations: %w", err)
	}

	now := time.Now()
	for _, id := range ids {
		info, err := c.manager.Info(ctx, id)
		if err != nil {
			log.Warn().Str("conversation_id", id).Err(err).Msg("Failed to get conversation info")
			continue
		}

		if c.cfg.MaxAge > 0 && now.Sub(info.LastModified) >= c.cfg.MaxAge {
			if err := c.manager.Delete(ctx, id); err != nil {
				log.Error().Str("conversation_id", id).Err(err).Msg("Failed to delete conversation")
				continue
			}
			report.Deleted = append(report.Deleted, id)
			continue
		}

		pruned, err := c.prune(ctx, id, info.Messages)
		if err != nil {
			log.Warn().Str("conversation_id", id).Err(err).Msg("Failed to prune conversation")
			continue
		}
		if pruned {
			report.Pruned = append(report.Pruned, id)
		}
	}

	if len(report.Deleted) > 0 || len(report.Pruned) > 0 {
		log.Info().
			Int("deleted", len(report.Deleted)).
			Int("pruned", len(report.Pruned)).
			Msg("Cleaned up conversations")
	}
	return report, nil
}

func (c *Cleanup) prune(ctx context.Context, id string, count int) (bool, error) {
	if c.cfg.MaxEntries <= 0 || count <= c.cfg.MaxEntries {
		return false, nil
	}

	msgs, err := c.manager.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if len(msgs) <= c.cfg.MaxEntries {
		return false, nil
	}

	kept := msgs[len(msgs)-c.cfg.MaxEntries:]
	if err := c.manager.ReplaceHistory(ctx, id, kept); err != nil {
		return false, err
	}

	log.Debug().
		Str("conversation_id", id).
		Int("from_entries", len(msgs)).
		Int("to_entries", len(kept)).
		Msg("Conversation pruned")
	return true, nil
}
