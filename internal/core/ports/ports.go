package ports

import (
	"context"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
)

// FleetRepository is the persistence boundary for every durable store: the
// node registry, access keys, grants, rosters, reseller balances, API keys,
// runtime settings and the audit trail. Lookups that miss return (nil, nil);
// services translate misses into sentinel errors.
type FleetRepository interface {
	// Node registry
	ListNodes(ctx context.Context) ([]domain.Node, error)
	GetNode(ctx context.Context, address string) (*domain.Node, error)
	CreateNode(ctx context.Context, node *domain.Node) error
	DeleteNode(ctx context.Context, address string) error

	// Access grants
	GetGrant(ctx context.Context, principalID int64) (*domain.AccessGrant, error)
	UpsertGrant(ctx context.Context, grant *domain.AccessGrant) error
	DeleteGrant(ctx context.Context, principalID int64) error
	ListGrants(ctx context.Context) ([]domain.AccessGrant, error)
	SetGrantVIP(ctx context.Context, principalID int64, vip bool) error

	// Access keys. RedeemKey flips unredeemed->redeemed and upserts the
	// principal's grant in one transaction; CreateKeyWithDebit debits the
	// reseller balance atomically with the insert.
	CreateKey(ctx context.Context, key *domain.AccessKey) error
	CreateKeyWithDebit(ctx context.Context, key *domain.AccessKey, resellerID int64, amount float64) error
	GetKeyByHash(ctx context.Context, codeHash string) (*domain.AccessKey, error)
	ListKeys(ctx context.Context) ([]domain.AccessKey, error)
	RedeemKey(ctx context.Context, codeHash string, principalID int64, now time.Time) (*domain.AccessKey, *domain.AccessGrant, error)

	// Rosters
	IsAdmin(ctx context.Context, principalID int64) (bool, error)
	IsOwner(ctx context.Context, principalID int64) (bool, error)
	AddAdmin(ctx context.Context, principalID, addedBy int64) error
	RemoveAdmin(ctx context.Context, principalID int64) error
	ListAdmins(ctx context.Context) ([]int64, error)
	AddOwner(ctx context.Context, principalID, addedBy int64) error
	RemoveOwner(ctx context.Context, principalID int64) error
	ListOwners(ctx context.Context) ([]int64, error)

	// Resellers
	GetReseller(ctx context.Context, principalID int64) (*domain.ResellerAccount, error)
	AddReseller(ctx context.Context, account *domain.ResellerAccount) error
	RemoveReseller(ctx context.Context, principalID int64) error
	ListResellers(ctx context.Context) ([]domain.ResellerAccount, error)
	AdjustResellerBalance(ctx context.Context, principalID int64, delta float64) error

	// Management API keys
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error

	// Runtime settings document. LoadSettings returns (nil, nil) when no
	// settings row exists yet.
	LoadSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings *domain.Settings) error

	// Audit trail
	SaveAuditLog(ctx context.Context, log *domain.AuditLog) error
	GetAuditLogs(ctx context.Context, principalID int64) ([]domain.AuditLog, error)

	Ping(ctx context.Context) error
}

// CommandExecutor runs one command on one node over a fresh remote-shell
// session. Remote or command failure is reported via ok=false and diagnostic
// output, never as an error; err is reserved for contract violations such as
// a malformed node record.
type CommandExecutor interface {
	Execute(ctx context.Context, node *domain.Node, command string, timeout time.Duration) (ok bool, output string, err error)
}

// MembershipChecker is the external verification collaborator. Any transport
// or lookup failure must surface as an error so callers can fail closed.
type MembershipChecker interface {
	IsVerified(ctx context.Context, principalID int64) (bool, error)
}

// CooldownTracker stores each principal's last accepted dispatch time.
type CooldownTracker interface {
	// Remaining returns the seconds left in the principal's cooldown
	// window, or 0 when no window is active.
	Remaining(ctx context.Context, principalID int64, window time.Duration) (int, error)
	// Mark records an accepted dispatch for the principal.
	Mark(ctx context.Context, principalID int64, window time.Duration) error
}

// Notifier relays structured dispatch reports to an external sink. The core
// only produces the data; delivery is out of scope.
type Notifier interface {
	Notify(ctx context.Context, channelID int64, report *domain.DispatchResult)
}

// EntitlementService resolves a principal's tier and resource ceiling.
type EntitlementService interface {
	Authorize(ctx context.Context, principalID int64, origin domain.Origin) (*domain.Decision, error)
	TierOf(ctx context.Context, principalID int64) (domain.Tier, error)
}

// DispatchService runs one job across all healthy fleet nodes.
type DispatchService interface {
	Dispatch(ctx context.Context, req *domain.JobRequest) (*domain.DispatchResult, error)
	ActiveJobs() []domain.ActiveJob
}

// RegistryService manages worker node records.
type RegistryService interface {
	ListNodes(ctx context.Context) ([]domain.Node, error)
	GetNode(ctx context.Context, address string) (*domain.Node, error)
	AddNode(ctx context.Context, address, username, password string, addedBy int64) (*domain.Node, error)
	RemoveNode(ctx context.Context, address string, removedBy int64) error
}

// KeyringService owns the access-key and grant lifecycle.
type KeyringService interface {
	IssueKey(ctx context.Context, class domain.TierClass, units int, issuedBy int64, vip bool, maxSecondsOverride *int) (code string, key *domain.AccessKey, err error)
	RedeemKey(ctx context.Context, code string, principalID int64) (*domain.AccessGrant, error)
	ApproveManually(ctx context.Context, principalID, approvedBy int64) (*domain.AccessGrant, error)
	SetVIP(ctx context.Context, principalID int64, vip bool, changedBy int64) error
	RevokeGrant(ctx context.Context, principalID, revokedBy int64) error
	ListKeys(ctx context.Context) ([]domain.AccessKey, error)
	ListGrants(ctx context.Context) ([]domain.AccessGrant, error)
}

// SettingsService guards the runtime configuration document.
type SettingsService interface {
	Get() domain.Settings
	SetCapacityPerNode(ctx context.Context, capacity int) error
	SetMaxConcurrentJobs(ctx context.Context, max int) error
	SetCeilings(ctx context.Context, regular, vip, admin, public int) error
	SetCooldownSeconds(ctx context.Context, seconds int) error
	SetDispatcherEnabled(ctx context.Context, enabled bool) error
	SetBlockedPorts(ctx context.Context, ports []int) error
	SetChannels(ctx context.Context, allowed, public []int64) error
}
