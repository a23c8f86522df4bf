package services

import (
	"context"
	"log"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
)

type entitlementService struct {
	repo       ports.FleetRepository
	membership ports.MembershipChecker
	cooldown   ports.CooldownTracker
	settings   ports.SettingsService
}

// NewEntitlementService wires the authorization state machine over the grant
// store, the external membership checker and the cooldown tracker.
func NewEntitlementService(repo ports.FleetRepository, membership ports.MembershipChecker, cooldown ports.CooldownTracker, settings ports.SettingsService) ports.EntitlementService {
	return &entitlementService{repo: repo, membership: membership, cooldown: cooldown, settings: settings}
}

func deny(reason domain.DenyReason, tier domain.Tier) *domain.Decision {
	return &domain.Decision{Allowed: false, Reason: reason, Tier: tier}
}

// Authorize evaluates the tier ladder fresh on every request. Admin and owner
// short-circuit; designated public channels get a reduced ceiling and a fleet
// limited to the first healthy node; everyone else needs a verified
// membership and a live grant. The cooldown window applies to every allowed
// outcome.
func (s *entitlementService) Authorize(ctx context.Context, principalID int64, origin domain.Origin) (*domain.Decision, error) {
	cfg := s.settings.Get()

	owner, err := s.repo.IsOwner(ctx, principalID)
	if err != nil {
		return nil, err
	}
	admin := owner
	if !admin {
		admin, err = s.repo.IsAdmin(ctx, principalID)
		if err != nil {
			return nil, err
		}
	}
	if admin {
		tier := domain.TierAdmin
		if owner {
			tier = domain.TierOwner
		}
		return s.withCooldown(ctx, principalID, &cfg, &domain.Decision{
			Allowed:        true,
			Tier:           tier,
			CeilingSeconds: cfg.AdminMaxSeconds,
		})
	}

	if !cfg.ChannelAllowed(origin.ChannelID) {
		return deny(domain.DenyChannelNotAllowed, domain.TierAnonymous), nil
	}

	// Membership verification is mandatory for every non-admin path and
	// fails closed: a checker error denies rather than guessing.
	verified, err := s.membership.IsVerified(ctx, principalID)
	if err != nil {
		log.Printf("membership check failed for principal %d: %v", principalID, err)
		return deny(domain.DenyVerificationFailed, domain.TierAnonymous), nil
	}
	if !verified {
		return deny(domain.DenyNotVerified, domain.TierAnonymous), nil
	}

	if cfg.ChannelPublic(origin.ChannelID) {
		// Public scope: no grant required, but blast radius is capped to
		// the first healthy node and the public ceiling.
		return s.withCooldown(ctx, principalID, &cfg, &domain.Decision{
			Allowed:        true,
			Tier:           domain.TierAnonymous,
			CeilingSeconds: cfg.PublicMaxSeconds,
			FleetLimit:     1,
		})
	}

	grant, err := s.repo.GetGrant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return deny(domain.DenyNeedsKey, domain.TierAnonymous), nil
	}

	tier := domain.TierKeyed
	if grant.IsVIP {
		tier = domain.TierVIP
	}

	if !grant.Manual() {
		if grant.ValidUntil == nil {
			// A redeemed key always stamps an expiry; a missing one is a
			// data-integrity fault, not an unbounded grant.
			return deny(domain.DenyInvalidGrant, tier), nil
		}
		if grant.Expired(time.Now()) {
			return deny(domain.DenyExpired, tier), nil
		}
	}

	ceiling := cfg.RegularMaxSeconds
	if grant.IsVIP {
		ceiling = cfg.VIPMaxSeconds
	}
	if grant.MaxJobSeconds != nil {
		ceiling = *grant.MaxJobSeconds
	}

	return s.withCooldown(ctx, principalID, &cfg, &domain.Decision{
		Allowed:        true,
		Tier:           tier,
		CeilingSeconds: ceiling,
	})
}

// withCooldown downgrades an allowed decision to a cooldown denial when the
// principal's window has not elapsed. Tracker failures are logged and treated
// as no active window; the cooldown is a throttle, not a security boundary.
func (s *entitlementService) withCooldown(ctx context.Context, principalID int64, cfg *domain.Settings, d *domain.Decision) (*domain.Decision, error) {
	if cfg.CooldownSeconds <= 0 {
		return d, nil
	}
	remaining, err := s.cooldown.Remaining(ctx, principalID, time.Duration(cfg.CooldownSeconds)*time.Second)
	if err != nil {
		log.Printf("cooldown lookup failed for principal %d: %v", principalID, err)
		return d, nil
	}
	if remaining > 0 {
		return &domain.Decision{
			Allowed:           false,
			Reason:            domain.DenyCooldown,
			Tier:              d.Tier,
			CooldownRemaining: remaining,
		}, nil
	}
	return d, nil
}

// TierOf derives the highest tier currently held by the principal.
func (s *entitlementService) TierOf(ctx context.Context, principalID int64) (domain.Tier, error) {
	owner, err := s.repo.IsOwner(ctx, principalID)
	if err != nil {
		return domain.TierAnonymous, err
	}
	if owner {
		return domain.TierOwner, nil
	}
	admin, err := s.repo.IsAdmin(ctx, principalID)
	if err != nil {
		return domain.TierAnonymous, err
	}
	if admin {
		return domain.TierAdmin, nil
	}
	grant, err := s.repo.GetGrant(ctx, principalID)
	if err != nil {
		return domain.TierAnonymous, err
	}
	if grant == nil {
		return domain.TierAnonymous, nil
	}
	if grant.IsVIP {
		return domain.TierVIP, nil
	}
	return domain.TierKeyed, nil
}
