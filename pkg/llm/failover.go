package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/rs/zerolog"
)

// ErrNoProfiles is returned when failover has nothing to try.
var ErrNoProfiles = errors.New("no AI profiles configured")

// FailoverConfig configures a Failover provider.
type FailoverConfig struct {
	Factory  ProviderFactory
	Logger   zerolog.Logger
	Cooldown time.Duration // per consecutive failure, default 60s
}

// Failover walks profiles by priority and skips those in cooldown.
// Each profile is attempted at most once per call; a non-retryable error stops
// the walk.
type Failover struct {
	factory  ProviderFactory
	logger   zerolog.Logger
	cooldown time.Duration

	mu        sync.RWMutex
	profiles  []Profile
	providers map[string]Provider
}

// NewFailover creates a failover provider over the given profiles.
func NewFailover(profiles []Profile, cfg FailoverConfig) (*Failover, error) {
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}
	if cfg.Factory == nil {
		cfg.Factory = DefaultFactory{}
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	sorted := make([]Profile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Failover{
		factory:   cfg.Factory,
		logger:    cfg.Logger,
		cooldown:  cfg.Cooldown,
		profiles:  sorted,
		providers: make(map[string]Provider),
	}, nil
}

// Provider returns the provider name
func (f *Failover) Provider() string {
	return "failover"
}

// Call tries profiles in priority order.
func (f *Failover) Call(ctx context.Context, request Request) (*Response, error) {
	f.mu.RLock()
	profiles := make([]Profile, len(f.profiles))
	copy(profiles, f.profiles)
	f.mu.RUnlock()

	logger := tracing.LoggerFromContext(ctx, f.logger)
	var lastErr error

	for _, profile := range profiles {
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, true)
			logger.Debug().Str("profileId", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		start := time.Now()
		provider, err := f.provider(profile)
		if err != nil {
			observability.RecordLLMCall(profile.Provider, time.Since(start), false)
			logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Failed to create provider")
			lastErr = err
			continue
		}

		resp, err := provider.Call(ctx, request)
		if err == nil {
			f.markSuccess(profile.ID)
			observability.RecordLLMCall(profile.Provider, time.Since(start), true)
			if resp.Usage != nil {
				logger.Debug().
					Str("profileId", profile.ID).
					Int("inputTokens", resp.Usage.InputTokens).
					Int("outputTokens", resp.Usage.OutputTokens).
					Msg("LLM call completed")
			}
			return resp, nil
		}

		lastErr = err
		observability.RecordLLMCall(profile.Provider, time.Since(start), false)
		logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Profile call failed")
		f.markFailure(profile.ID)

		if !IsRetryableError(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("all profiles are cooling down: %w", ErrNoProfiles)
	}
	logger.Error().Err(lastErr).Msg("All profiles failed")
	return nil, fmt.Errorf("all profiles failed: %w", lastErr)
}

func (f *Failover) provider(profile Profile) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[profile.ID]; ok {
		return p, nil
	}
	p, err := f.factory.NewProvider(profile)
	if err != nil {
		return nil, err
	}
	f.providers[profile.ID] = p
	return p, nil
}

func (f *Failover) markSuccess(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount = 0
			f.profiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(f.profiles[i].Provider, false)
			break
		}
	}
}

func (f *Failover) markFailure(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount++
			until := time.Now().Add(f.cooldown * time.Duration(f.profiles[i].FailureCount)).UnixMilli()
			f.profiles[i].CooldownUntil = &until
			observability.SetProviderCooldown(f.profiles[i].Provider, true)
			break
		}
	}
}

// Profiles returns a snapshot of the profile states.
func (f *Failover) Profiles() []Profile {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Profile, len(f.profiles))
	copy(out, f.profiles)
	return out
}
