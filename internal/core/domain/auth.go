package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"    // Full access to rosters, settings and fleet
	RoleOperator Role = "operator" // Dispatch and key redemption only
)

// APIKey authenticates a caller of the management API and binds it to a
// principal id. The raw key is shown once at creation time.
type APIKey struct {
	ID          string     `json:"id"`
	PrincipalID int64      `json:"principal_id"`
	Name        string     `json:"name"`       // Human-readable label, e.g. "ops-laptop"
	KeyHash     string     `json:"-"`          // SHA-256 hash of the key (never store raw)
	KeyPrefix   string     `json:"key_prefix"` // First 8 chars for identification
	Role        Role       `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Tier is the authorization level derived for a principal. Admin and Owner
// imply every lesser tier.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierKeyed     Tier = "keyed"
	TierVIP       Tier = "vip"
	TierAdmin     Tier = "admin"
	TierOwner     Tier = "owner"
)

// AccessGrant is the per-principal record determining access validity and
// limits. A nil IssuingKey marks a manual approval, which bypasses expiry.
// Expired grants are kept for audit and fail authorization without being
// deleted.
type AccessGrant struct {
	PrincipalID   int64      `json:"principal_id"`
	IssuingKey    *string    `json:"issuing_key,omitempty"` // key id; nil = manually granted
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	IsVIP         bool       `json:"is_vip"`
	MaxJobSeconds *int       `json:"max_job_seconds,omitempty"` // per-grant ceiling override
	GrantedBy     int64      `json:"granted_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Manual reports whether the grant was issued by hand rather than through a
// key redemption.
func (g *AccessGrant) Manual() bool {
	return g.IssuingKey == nil
}

// Expired reports whether the grant's validity window has passed at now.
// The boundary instant counts as expired: a grant valid until T is denied at
// exactly T. Manual grants never expire. A non-manual grant without an expiry
// is a data fault handled by the entitlement engine, not here.
func (g *AccessGrant) Expired(now time.Time) bool {
	if g.Manual() || g.ValidUntil == nil {
		return false
	}
	return !now.Before(*g.ValidUntil)
}

// ResellerAccount carries a prepaid balance debited on key issuance. The
// balance must never go negative; debits are checked and applied atomically
// by the repository.
type ResellerAccount struct {
	PrincipalID int64     `json:"principal_id"`
	Balance     float64   `json:"balance"`
	AddedBy     int64     `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

// DenyReason is the specific, actionable reason attached to a denied
// authorization decision.
type DenyReason string

const (
	DenyNone               DenyReason = ""
	DenyNeedsKey           DenyReason = "needs_key"
	DenyExpired            DenyReason = "expired"
	DenyInvalidGrant       DenyReason = "invalid_grant"
	DenyNotVerified        DenyReason = "not_verified"
	DenyVerificationFailed DenyReason = "verification_failed"
	DenyCooldown           DenyReason = "cooldown"
	DenyChannelNotAllowed  DenyReason = "channel_not_allowed"
	DenyDisabled           DenyReason = "dispatcher_disabled"
)

// Decision is the structured result of an authorization check. Call sites
// consume it instead of re-deriving tier logic.
type Decision struct {
	Allowed           bool       `json:"allowed"`
	Reason            DenyReason `json:"reason,omitempty"`
	Tier              Tier       `json:"tier"`
	CeilingSeconds    int        `json:"ceiling_seconds"`
	FleetLimit        int        `json:"fleet_limit"` // 0 = whole fleet; >0 caps the node count
	CooldownRemaining int        `json:"cooldown_remaining,omitempty"`
}

// Origin identifies the channel or group a job request came from. A zero
// ChannelID means a direct (private) request.
type Origin struct {
	ChannelID int64 `json:"channel_id"`
}
