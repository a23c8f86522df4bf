package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
)

// fakeRepo is an in-memory FleetRepository used across the service tests.
// Error injection fields force specific failures.
type fakeRepo struct {
	mu sync.Mutex

	nodes     []domain.Node
	grants    map[int64]*domain.AccessGrant
	keys      map[string]*domain.AccessKey // by code hash
	admins    map[int64]bool
	owners    map[int64]bool
	resellers map[int64]*domain.ResellerAccount
	apiKeys   map[string]*domain.APIKey
	settings  *domain.Settings
	auditLogs []domain.AuditLog

	grantErr    error
	settingsErr error
	saveErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		grants:    make(map[int64]*domain.AccessGrant),
		keys:      make(map[string]*domain.AccessKey),
		admins:    make(map[int64]bool),
		owners:    make(map[int64]bool),
		resellers: make(map[int64]*domain.ResellerAccount),
		apiKeys:   make(map[string]*domain.APIKey),
	}
}

func (f *fakeRepo) ListNodes(ctx context.Context) ([]domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Node(nil), f.nodes...), nil
}

func (f *fakeRepo) GetNode(ctx context.Context, address string) (*domain.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.nodes {
		if f.nodes[i].Address == address {
			n := f.nodes[i]
			return &n, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateNode(ctx context.Context, node *domain.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, *node)
	return nil
}

func (f *fakeRepo) DeleteNode(ctx context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.nodes {
		if f.nodes[i].Address == address {
			f.nodes = append(f.nodes[:i], f.nodes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) GetGrant(ctx context.Context, principalID int64) (*domain.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	g, ok := f.grants[principalID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (f *fakeRepo) UpsertGrant(ctx context.Context, grant *domain.AccessGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *grant
	f.grants[grant.PrincipalID] = &cp
	return nil
}

func (f *fakeRepo) DeleteGrant(ctx context.Context, principalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants, principalID)
	return nil
}

func (f *fakeRepo) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessGrant
	for _, g := range f.grants {
		out = append(out, *g)
	}
	return out, nil
}

func (f *fakeRepo) SetGrantVIP(ctx context.Context, principalID int64, vip bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grants[principalID]; ok {
		g.IsVIP = vip
	}
	return nil
}

func (f *fakeRepo) CreateKey(ctx context.Context, key *domain.AccessKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.keys[key.CodeHash] = &cp
	return nil
}

func (f *fakeRepo) CreateKeyWithDebit(ctx context.Context, key *domain.AccessKey, resellerID int64, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.resellers[resellerID]
	if !ok || account.Balance < amount {
		return fmt.Errorf("%w: reseller %d cannot cover %.2f", domain.ErrInsufficientBalance, resellerID, amount)
	}
	account.Balance -= amount
	cp := *key
	f.keys[key.CodeHash] = &cp
	return nil
}

func (f *fakeRepo) GetKeyByHash(ctx context.Context, codeHash string) (*domain.AccessKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[codeHash]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (f *fakeRepo) ListKeys(ctx context.Context) ([]domain.AccessKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessKey
	for _, k := range f.keys {
		out = append(out, *k)
	}
	return out, nil
}

func (f *fakeRepo) RedeemKey(ctx context.Context, codeHash string, principalID int64, now time.Time) (*domain.AccessKey, *domain.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[codeHash]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown key code", domain.ErrKeyInvalid)
	}
	if key.Redeemed {
		return nil, nil, fmt.Errorf("%w: key %s", domain.ErrKeyAlreadyRedeemed, key.CodePrefix)
	}
	key.Redeemed = true
	key.RedeemedBy = &principalID
	key.RedeemedAt = &now

	validUntil := now.Add(key.TierClass.Duration())
	grant := &domain.AccessGrant{
		PrincipalID:   principalID,
		IssuingKey:    &key.ID,
		ValidUntil:    &validUntil,
		IsVIP:         key.IsVIP,
		MaxJobSeconds: key.MaxJobSecondsOverride,
		GrantedBy:     key.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cp := *grant
	f.grants[principalID] = &cp
	kcp := *key
	return &kcp, grant, nil
}

func (f *fakeRepo) IsAdmin(ctx context.Context, principalID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[principalID], nil
}

func (f *fakeRepo) IsOwner(ctx context.Context, principalID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[principalID], nil
}

func (f *fakeRepo) AddAdmin(ctx context.Context, principalID, addedBy int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[principalID] = true
	return nil
}

func (f *fakeRepo) RemoveAdmin(ctx context.Context, principalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.admins, principalID)
	return nil
}

func (f *fakeRepo) ListAdmins(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.admins {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeRepo) AddOwner(ctx context.Context, principalID, addedBy int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[principalID] = true
	return nil
}

func (f *fakeRepo) RemoveOwner(ctx context.Context, principalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.owners, principalID)
	return nil
}

func (f *fakeRepo) ListOwners(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for id := range f.owners {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeRepo) GetReseller(ctx context.Context, principalID int64) (*domain.ResellerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.resellers[principalID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) AddReseller(ctx context.Context, account *domain.ResellerAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *account
	f.resellers[account.PrincipalID] = &cp
	return nil
}

func (f *fakeRepo) RemoveReseller(ctx context.Context, principalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resellers, principalID)
	return nil
}

func (f *fakeRepo) ListResellers(ctx context.Context) ([]domain.ResellerAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ResellerAccount
	for _, a := range f.resellers {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) AdjustResellerBalance(ctx context.Context, principalID int64, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.resellers[principalID]
	if !ok {
		return fmt.Errorf("%w: reseller %d", domain.ErrNotFound, principalID)
	}
	if a.Balance+delta < 0 {
		return fmt.Errorf("%w: reseller %d cannot absorb %.2f", domain.ErrInsufficientBalance, principalID, delta)
	}
	a.Balance += delta
	return nil
}

func (f *fakeRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.apiKeys[keyHash]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

func (f *fakeRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.apiKeys[key.KeyHash] = &cp
	return nil
}

func (f *fakeRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.APIKey
	for _, k := range f.apiKeys {
		out = append(out, *k)
	}
	return out, nil
}

func (f *fakeRepo) DeleteAPIKey(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, k := range f.apiKeys {
		if k.ID == id {
			delete(f.apiKeys, hash)
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	if f.settings == nil {
		return nil, nil
	}
	cp := *f.settings
	return &cp, nil
}

func (f *fakeRepo) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *settings
	f.settings = &cp
	return nil
}

func (f *fakeRepo) SaveAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auditLogs = append(f.auditLogs, *entry)
	return nil
}

func (f *fakeRepo) GetAuditLogs(ctx context.Context, principalID int64) ([]domain.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditLog
	for _, l := range f.auditLogs {
		if l.PrincipalID == principalID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

// fakeExecutor scripts per-address command outcomes. The probe, artifact
// check and launch stages can fail independently.
type fakeExecutor struct {
	mu         sync.Mutex
	failProbe  map[string]bool
	failLaunch map[string]bool
	missing    map[string]bool
	calls      map[string][]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failProbe:  make(map[string]bool),
		failLaunch: make(map[string]bool),
		missing:    make(map[string]bool),
		calls:      make(map[string][]string),
	}
}

func (e *fakeExecutor) Execute(ctx context.Context, node *domain.Node, command string, timeout time.Duration) (bool, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[node.Address] = append(e.calls[node.Address], command)

	switch {
	case command == probeCommand:
		if e.failProbe[node.Address] {
			return false, "connection refused", nil
		}
		return true, "fleet-probe", nil
	case strings.HasPrefix(command, "test -x"):
		if e.missing[node.Address] {
			return true, "missing", nil
		}
		return true, "present", nil
	default:
		if e.failLaunch[node.Address] {
			return false, "launch refused", nil
		}
		return true, "", nil
	}
}

func (e *fakeExecutor) callsFor(address string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls[address]...)
}

type fakeMembership struct {
	verified bool
	err      error
}

func (m *fakeMembership) IsVerified(ctx context.Context, principalID int64) (bool, error) {
	return m.verified, m.err
}

type fakeCooldown struct {
	mu        sync.Mutex
	remaining int
	err       error
	marks     int
}

func (c *fakeCooldown) Remaining(ctx context.Context, principalID int64, window time.Duration) (int, error) {
	return c.remaining, c.err
}

func (c *fakeCooldown) Mark(ctx context.Context, principalID int64, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks++
	return c.err
}

// fixedSettings satisfies ports.SettingsService with a static document, so
// entitlement and dispatch tests can pin configuration without persistence.
type fixedSettings struct {
	cfg domain.Settings
}

func settingsWith(mutate func(*domain.Settings)) *fixedSettings {
	cfg := domain.DefaultSettings()
	if mutate != nil {
		mutate(cfg)
	}
	return &fixedSettings{cfg: *cfg}
}

func (s *fixedSettings) Get() domain.Settings { return s.cfg }

func (s *fixedSettings) SetCapacityPerNode(ctx context.Context, capacity int) error { return nil }
func (s *fixedSettings) SetMaxConcurrentJobs(ctx context.Context, max int) error    { return nil }
func (s *fixedSettings) SetCeilings(ctx context.Context, regular, vip, admin, public int) error {
	return nil
}
func (s *fixedSettings) SetCooldownSeconds(ctx context.Context, seconds int) error { return nil }
func (s *fixedSettings) SetDispatcherEnabled(ctx context.Context, enabled bool) error {
	return nil
}
func (s *fixedSettings) SetBlockedPorts(ctx context.Context, ports []int) error { return nil }
func (s *fixedSettings) SetChannels(ctx context.Context, allowed, public []int64) error {
	return nil
}
