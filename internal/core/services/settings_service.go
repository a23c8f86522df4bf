package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
)

type settingsService struct {
	repo ports.FleetRepository

	mu      sync.RWMutex
	current *domain.Settings
}

// NewSettingsService loads the persisted runtime configuration, falling back
// to documented defaults when the document is absent or unreadable. All
// mutation goes through the service so there is exactly one lock around the
// shared configuration.
func NewSettingsService(ctx context.Context, repo ports.FleetRepository) ports.SettingsService {
	s := &settingsService{repo: repo}

	loaded, err := repo.LoadSettings(ctx)
	if err != nil {
		log.Printf("failed to load settings, using defaults: %v", err)
		loaded = nil
	}
	if loaded == nil {
		s.current = domain.DefaultSettings()
		return s
	}
	if loaded.CapacityPerNode < domain.MinCapacityPerNode || loaded.CapacityPerNode > domain.MaxCapacityPerNode {
		log.Printf("capacity %d out of range, using default %d", loaded.CapacityPerNode, domain.DefaultCapacityPerNode)
		loaded.CapacityPerNode = domain.DefaultCapacityPerNode
	}
	if loaded.MaxConcurrentJobs < 1 {
		loaded.MaxConcurrentJobs = domain.DefaultSettings().MaxConcurrentJobs
	}
	if loaded.LaunchTemplate == "" {
		loaded.LaunchTemplate = domain.DefaultSettings().LaunchTemplate
	}
	if loaded.ArtifactPath == "" {
		loaded.ArtifactPath = domain.DefaultSettings().ArtifactPath
	}
	s.current = loaded
	return s
}

// Get returns a copy of the current settings; slices are cloned so callers
// cannot mutate shared state.
func (s *settingsService) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := *s.current
	cfg.BlockedPorts = append([]int(nil), s.current.BlockedPorts...)
	cfg.AllowedChannels = append([]int64(nil), s.current.AllowedChannels...)
	cfg.PublicChannels = append([]int64(nil), s.current.PublicChannels...)
	return cfg
}

// update applies mutate to a copy and persists it; the in-memory settings
// change only after a successful save, so a failed save never leaves phantom
// configuration behind.
func (s *settingsService) update(ctx context.Context, mutate func(*domain.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current
	next.BlockedPorts = append([]int(nil), s.current.BlockedPorts...)
	next.AllowedChannels = append([]int64(nil), s.current.AllowedChannels...)
	next.PublicChannels = append([]int64(nil), s.current.PublicChannels...)
	mutate(&next)

	if err := s.repo.SaveSettings(ctx, &next); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	s.current = &next
	return nil
}

func (s *settingsService) SetCapacityPerNode(ctx context.Context, capacity int) error {
	if capacity < domain.MinCapacityPerNode || capacity > domain.MaxCapacityPerNode {
		return fmt.Errorf("%w: capacity must be between %d and %d",
			domain.ErrInvalidInput, domain.MinCapacityPerNode, domain.MaxCapacityPerNode)
	}
	return s.update(ctx, func(cfg *domain.Settings) { cfg.CapacityPerNode = capacity })
}

func (s *settingsService) SetMaxConcurrentJobs(ctx context.Context, max int) error {
	if max < 1 {
		return fmt.Errorf("%w: max concurrent jobs must be at least 1", domain.ErrInvalidInput)
	}
	return s.update(ctx, func(cfg *domain.Settings) { cfg.MaxConcurrentJobs = max })
}

func (s *settingsService) SetCeilings(ctx context.Context, regular, vip, admin, public int) error {
	for _, v := range []int{regular, vip, admin, public} {
		if v < 1 {
			return fmt.Errorf("%w: ceilings must be positive", domain.ErrInvalidInput)
		}
	}
	return s.update(ctx, func(cfg *domain.Settings) {
		cfg.RegularMaxSeconds = regular
		cfg.VIPMaxSeconds = vip
		cfg.AdminMaxSeconds = admin
		cfg.PublicMaxSeconds = public
	})
}

func (s *settingsService) SetCooldownSeconds(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: cooldown cannot be negative", domain.ErrInvalidInput)
	}
	return s.update(ctx, func(cfg *domain.Settings) { cfg.CooldownSeconds = seconds })
}

func (s *settingsService) SetDispatcherEnabled(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(cfg *domain.Settings) { cfg.DispatcherEnabled = enabled })
}

func (s *settingsService) SetBlockedPorts(ctx context.Context, ports []int) error {
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: port %d out of range", domain.ErrInvalidInput, p)
		}
	}
	return s.update(ctx, func(cfg *domain.Settings) { cfg.BlockedPorts = append([]int(nil), ports...) })
}

func (s *settingsService) SetChannels(ctx context.Context, allowed, public []int64) error {
	return s.update(ctx, func(cfg *domain.Settings) {
		cfg.AllowedChannels = append([]int64(nil), allowed...)
		cfg.PublicChannels = append([]int64(nil), public...)
	})
}
