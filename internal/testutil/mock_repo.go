package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) ListNodes(ctx context.Context) ([]domain.Node, error) {
	args := m.Called()
	return args.Get(0).([]domain.Node), args.Error(1)
}

func (m *MockRepo) GetNode(ctx context.Context, address string) (*domain.Node, error) {
	args := m.Called(address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Node), args.Error(1)
}

func (m *MockRepo) CreateNode(ctx context.Context, node *domain.Node) error {
	args := m.Called(node)
	return args.Error(0)
}

func (m *MockRepo) DeleteNode(ctx context.Context, address string) error {
	args := m.Called(address)
	return args.Error(0)
}

func (m *MockRepo) GetGrant(ctx context.Context, principalID int64) (*domain.AccessGrant, error) {
	args := m.Called(principalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessGrant), args.Error(1)
}

func (m *MockRepo) UpsertGrant(ctx context.Context, grant *domain.AccessGrant) error {
	args := m.Called(grant)
	return args.Error(0)
}

func (m *MockRepo) DeleteGrant(ctx context.Context, principalID int64) error {
	args := m.Called(principalID)
	return args.Error(0)
}

func (m *MockRepo) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	args := m.Called()
	return args.Get(0).([]domain.AccessGrant), args.Error(1)
}

func (m *MockRepo) SetGrantVIP(ctx context.Context, principalID int64, vip bool) error {
	args := m.Called(principalID, vip)
	return args.Error(0)
}

func (m *MockRepo) CreateKey(ctx context.Context, key *domain.AccessKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) CreateKeyWithDebit(ctx context.Context, key *domain.AccessKey, resellerID int64, amount float64) error {
	args := m.Called(key, resellerID, amount)
	return args.Error(0)
}

func (m *MockRepo) GetKeyByHash(ctx context.Context, codeHash string) (*domain.AccessKey, error) {
	args := m.Called(codeHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccessKey), args.Error(1)
}

func (m *MockRepo) ListKeys(ctx context.Context) ([]domain.AccessKey, error) {
	args := m.Called()
	return args.Get(0).([]domain.AccessKey), args.Error(1)
}

func (m *MockRepo) RedeemKey(ctx context.Context, codeHash string, principalID int64, now time.Time) (*domain.AccessKey, *domain.AccessGrant, error) {
	args := m.Called(codeHash, principalID, now)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.AccessKey), args.Get(1).(*domain.AccessGrant), args.Error(2)
}

func (m *MockRepo) IsAdmin(ctx context.Context, principalID int64) (bool, error) {
	args := m.Called(principalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) IsOwner(ctx context.Context, principalID int64) (bool, error) {
	args := m.Called(principalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) AddAdmin(ctx context.Context, principalID, addedBy int64) error {
	args := m.Called(principalID, addedBy)
	return args.Error(0)
}

func (m *MockRepo) RemoveAdmin(ctx context.Context, principalID int64) error {
	args := m.Called(principalID)
	return args.Error(0)
}

func (m *MockRepo) ListAdmins(ctx context.Context) ([]int64, error) {
	args := m.Called()
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRepo) AddOwner(ctx context.Context, principalID, addedBy int64) error {
	args := m.Called(principalID, addedBy)
	return args.Error(0)
}

func (m *MockRepo) RemoveOwner(ctx context.Context, principalID int64) error {
	args := m.Called(principalID)
	return args.Error(0)
}

func (m *MockRepo) ListOwners(ctx context.Context) ([]int64, error) {
	args := m.Called()
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRepo) GetReseller(ctx context.Context, principalID int64) (*domain.ResellerAccount, error) {
	args := m.Called(principalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResellerAccount), args.Error(1)
}

func (m *MockRepo) AddReseller(ctx context.Context, account *domain.ResellerAccount) error {
	args := m.Called(account)
	return args.Error(0)
}

func (m *MockRepo) RemoveReseller(ctx context.Context, principalID int64) error {
	args := m.Called(principalID)
	return args.Error(0)
}

func (m *MockRepo) ListResellers(ctx context.Context) ([]domain.ResellerAccount, error) {
	args := m.Called()
	return args.Get(0).([]domain.ResellerAccount), args.Error(1)
}

func (m *MockRepo) AdjustResellerBalance(ctx context.Context, principalID int64, delta float64) error {
	args := m.Called(principalID, delta)
	return args.Error(0)
}

func (m *MockRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	args := m.Called()
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockRepo) DeleteAPIKey(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRepo) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func (m *MockRepo) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	args := m.Called(settings)
	return args.Error(0)
}

func (m *MockRepo) SaveAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockRepo) GetAuditLogs(ctx context.Context, principalID int64) ([]domain.AuditLog, error) {
	args := m.Called(principalID)
	return args.Get(0).([]domain.AuditLog), args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
