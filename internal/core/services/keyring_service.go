package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
	"github.com/poyrazK/cloudFleet/internal/infrastructure/metrics"
)

const (
	keyCodePrefix      = "FLEET"
	manualGrantDays    = 30
	maxCodeCollisions  = 5
)

type keyringService struct {
	repo     ports.FleetRepository
	settings ports.SettingsService
}

// NewKeyringService owns key issuance, redemption and grant management.
func NewKeyringService(repo ports.FleetRepository, settings ports.SettingsService) ports.KeyringService {
	return &keyringService{repo: repo, settings: settings}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

func newKeyCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("%s-%s-%s", keyCodePrefix, raw[:4], raw[4:]), nil
}

// IssueKey generates a collision-checked one-shot code and persists the key
// unredeemed. Any issuer holding a reseller account is debited the discounted
// tier price atomically with the insert, elevated or not; admins and owners
// without one issue for free. An insufficient balance aborts issuance with no
// key created.
func (s *keyringService) IssueKey(ctx context.Context, class domain.TierClass, units int, issuedBy int64, vip bool, maxSecondsOverride *int) (string, *domain.AccessKey, error) {
	if !class.Valid() {
		return "", nil, fmt.Errorf("%w: unknown tier class %q", domain.ErrInvalidInput, class)
	}
	if units < 1 {
		units = 1
	}
	if maxSecondsOverride != nil && *maxSecondsOverride <= 0 {
		return "", nil, fmt.Errorf("%w: max seconds override must be positive", domain.ErrInvalidInput)
	}

	elevated, err := s.isAdminOrOwner(ctx, issuedBy)
	if err != nil {
		return "", nil, err
	}
	reseller, err := s.repo.GetReseller(ctx, issuedBy)
	if err != nil {
		return "", nil, err
	}
	if !elevated && reseller == nil {
		return "", nil, fmt.Errorf("%w: key issuance requires admin, owner or reseller", domain.ErrPermissionDenied)
	}

	code, codeHash, err := s.uniqueCode(ctx)
	if err != nil {
		return "", nil, err
	}

	key := &domain.AccessKey{
		ID:                    uuid.New().String(),
		CodeHash:              codeHash,
		CodePrefix:            code[:len(keyCodePrefix)+5],
		TierClass:             class,
		DurationUnits:         units,
		Price:                 domain.KeyPrices[class],
		IsVIP:                 vip,
		MaxJobSecondsOverride: maxSecondsOverride,
		CreatedBy:             issuedBy,
		CreatedAt:             time.Now(),
	}

	if reseller != nil {
		cost := float64(key.Price) * (1 - s.settings.Get().ResellerDiscount)
		if err := s.repo.CreateKeyWithDebit(ctx, key, issuedBy, cost); err != nil {
			return "", nil, err
		}
	} else {
		if err := s.repo.CreateKey(ctx, key); err != nil {
			return "", nil, err
		}
	}

	s.audit(ctx, issuedBy, "issue_key", "access_key", key.ID,
		fmt.Sprintf("class=%s units=%d vip=%t", class, units, vip))
	return code, key, nil
}

func (s *keyringService) uniqueCode(ctx context.Context) (string, string, error) {
	for i := 0; i < maxCodeCollisions; i++ {
		code, err := newKeyCode()
		if err != nil {
			return "", "", err
		}
		codeHash := hashCode(code)
		existing, err := s.repo.GetKeyByHash(ctx, codeHash)
		if err != nil {
			return "", "", err
		}
		if existing == nil {
			return code, codeHash, nil
		}
	}
	return "", "", fmt.Errorf("could not generate a unique key code")
}

// RedeemKey flips the key unredeemed->redeemed exactly once and upserts the
// principal's grant in the same transaction. A second redemption returns
// ErrKeyAlreadyRedeemed and leaves the grant untouched.
func (s *keyringService) RedeemKey(ctx context.Context, code string, principalID int64) (*domain.AccessGrant, error) {
	_, grant, err := s.repo.RedeemKey(ctx, hashCode(code), principalID, time.Now())
	if err != nil {
		metrics.KeyRedemptions.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.KeyRedemptions.WithLabelValues("ok").Inc()
	s.audit(ctx, principalID, "redeem_key", "access_grant", fmt.Sprintf("%d", principalID), "")
	return grant, nil
}

// ApproveManually creates a grant without a key. Manual grants bypass expiry
// checks; the 30-day stamp is bookkeeping for the roster listing.
func (s *keyringService) ApproveManually(ctx context.Context, principalID, approvedBy int64) (*domain.AccessGrant, error) {
	if err := s.requireAdmin(ctx, approvedBy); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetGrant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: principal %d already has a grant", domain.ErrInvalidInput, principalID)
	}

	now := time.Now()
	until := now.Add(manualGrantDays * 24 * time.Hour)
	grant := &domain.AccessGrant{
		PrincipalID: principalID,
		IssuingKey:  nil,
		ValidUntil:  &until,
		GrantedBy:   approvedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.UpsertGrant(ctx, grant); err != nil {
		return nil, err
	}
	s.audit(ctx, approvedBy, "approve_manual", "access_grant", fmt.Sprintf("%d", principalID), "")
	return grant, nil
}

// SetVIP toggles the VIP flag on an existing grant.
func (s *keyringService) SetVIP(ctx context.Context, principalID int64, vip bool, changedBy int64) error {
	if err := s.requireAdmin(ctx, changedBy); err != nil {
		return err
	}
	grant, err := s.repo.GetGrant(ctx, principalID)
	if err != nil {
		return err
	}
	if grant == nil {
		return fmt.Errorf("%w: principal %d has no grant", domain.ErrNotFound, principalID)
	}
	if err := s.repo.SetGrantVIP(ctx, principalID, vip); err != nil {
		return err
	}
	s.audit(ctx, changedBy, "set_vip", "access_grant", fmt.Sprintf("%d", principalID), fmt.Sprintf("vip=%t", vip))
	return nil
}

// RevokeGrant removes a principal's grant entirely.
func (s *keyringService) RevokeGrant(ctx context.Context, principalID, revokedBy int64) error {
	if err := s.requireAdmin(ctx, revokedBy); err != nil {
		return err
	}
	grant, err := s.repo.GetGrant(ctx, principalID)
	if err != nil {
		return err
	}
	if grant == nil {
		return fmt.Errorf("%w: principal %d has no grant", domain.ErrNotFound, principalID)
	}
	if err := s.repo.DeleteGrant(ctx, principalID); err != nil {
		return err
	}
	s.audit(ctx, revokedBy, "revoke_grant", "access_grant", fmt.Sprintf("%d", principalID), "")
	return nil
}

func (s *keyringService) ListKeys(ctx context.Context) ([]domain.AccessKey, error) {
	return s.repo.ListKeys(ctx)
}

func (s *keyringService) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	return s.repo.ListGrants(ctx)
}

func (s *keyringService) isAdminOrOwner(ctx context.Context, principalID int64) (bool, error) {
	owner, err := s.repo.IsOwner(ctx, principalID)
	if err != nil {
		return false, err
	}
	if owner {
		return true, nil
	}
	return s.repo.IsAdmin(ctx, principalID)
}

func (s *keyringService) requireAdmin(ctx context.Context, principalID int64) error {
	ok, err := s.isAdminOrOwner(ctx, principalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: admin or owner tier required", domain.ErrPermissionDenied)
	}
	return nil
}

func (s *keyringService) audit(ctx context.Context, principalID int64, action, resourceType, resourceID, details string) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		PrincipalID:  principalID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.SaveAuditLog(ctx, entry); err != nil {
		log.Printf("failed to save audit log for %s: %v", action, err)
	}
}
