package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
)

// PostgresRepository implements ports.FleetRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// --- Node registry ---

func (r *PostgresRepository) ListNodes(ctx context.Context) ([]domain.Node, error) {
	query := `SELECT address, username, password, added_by, added_at FROM fleet_nodes ORDER BY added_at ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var nodes []domain.Node
	for rows.Next() {
		var n domain.Node
		if errScan := rows.Scan(&n.Address, &n.Username, &n.Password, &n.AddedBy, &n.AddedAt); errScan != nil {
			return nil, errScan
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *PostgresRepository) GetNode(ctx context.Context, address string) (*domain.Node, error) {
	query := `SELECT address, username, password, added_by, added_at FROM fleet_nodes WHERE address = $1`
	var n domain.Node
	errRow := r.db.QueryRowContext(ctx, query, address).Scan(&n.Address, &n.Username, &n.Password, &n.AddedBy, &n.AddedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &n, nil
}

func (r *PostgresRepository) CreateNode(ctx context.Context, node *domain.Node) error {
	query := `INSERT INTO fleet_nodes (address, username, password, added_by, added_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, node.Address, node.Username, node.Password, node.AddedBy, node.AddedAt)
	return err
}

func (r *PostgresRepository) DeleteNode(ctx context.Context, address string) error {
	query := `DELETE FROM fleet_nodes WHERE address = $1`
	_, err := r.db.ExecContext(ctx, query, address)
	return err
}

// --- Access grants ---

const grantColumns = `principal_id, issuing_key, valid_until, is_vip, max_job_seconds, granted_by, created_at, updated_at`

func scanGrant(scan func(...any) error) (*domain.AccessGrant, error) {
	var g domain.AccessGrant
	var issuingKey sql.NullString
	var validUntil sql.NullTime
	var maxSeconds sql.NullInt32
	if err := scan(&g.PrincipalID, &issuingKey, &validUntil, &g.IsVIP, &maxSeconds, &g.GrantedBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if issuingKey.Valid {
		k := issuingKey.String
		g.IssuingKey = &k
	}
	if validUntil.Valid {
		t := validUntil.Time
		g.ValidUntil = &t
	}
	if maxSeconds.Valid {
		m := int(maxSeconds.Int32)
		g.MaxJobSeconds = &m
	}
	return &g, nil
}

func (r *PostgresRepository) GetGrant(ctx context.Context, principalID int64) (*domain.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants WHERE principal_id = $1`
	row := r.db.QueryRowContext(ctx, query, principalID)
	grant, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *PostgresRepository) UpsertGrant(ctx context.Context, grant *domain.AccessGrant) error {
	query := `INSERT INTO access_grants (` + grantColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (principal_id) DO UPDATE SET
			  issuing_key = EXCLUDED.issuing_key, valid_until = EXCLUDED.valid_until,
			  is_vip = EXCLUDED.is_vip, max_job_seconds = EXCLUDED.max_job_seconds,
			  granted_by = EXCLUDED.granted_by, updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, grant.PrincipalID, grant.IssuingKey, grant.ValidUntil,
		grant.IsVIP, grant.MaxJobSeconds, grant.GrantedBy, grant.CreatedAt, grant.UpdatedAt)
	return err
}

func (r *PostgresRepository) DeleteGrant(ctx context.Context, principalID int64) error {
	query := `DELETE FROM access_grants WHERE principal_id = $1`
	_, err := r.db.ExecContext(ctx, query, principalID)
	return err
}

func (r *PostgresRepository) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var grants []domain.AccessGrant
	for rows.Next() {
		g, errScan := scanGrant(rows.Scan)
		if errScan != nil {
			return nil, errScan
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

func (r *PostgresRepository) SetGrantVIP(ctx context.Context, principalID int64, vip bool) error {
	query := `UPDATE access_grants SET is_vip = $1, updated_at = $2 WHERE principal_id = $3`
	_, err := r.db.ExecContext(ctx, query, vip, time.Now(), principalID)
	return err
}

// --- Access keys ---

const keyColumns = `id, code_hash, code_prefix, tier_class, duration_units, price, is_vip, max_seconds_override, redeemed, redeemed_by, redeemed_at, created_by, created_at`

func scanKey(scan func(...any) error) (*domain.AccessKey, error) {
	var k domain.AccessKey
	var maxSeconds sql.NullInt32
	var redeemedBy sql.NullInt64
	var redeemedAt sql.NullTime
	if err := scan(&k.ID, &k.CodeHash, &k.CodePrefix, &k.TierClass, &k.DurationUnits, &k.Price,
		&k.IsVIP, &maxSeconds, &k.Redeemed, &redeemedBy, &redeemedAt, &k.CreatedBy, &k.CreatedAt); err != nil {
		return nil, err
	}
	if maxSeconds.Valid {
		m := int(maxSeconds.Int32)
		k.MaxJobSecondsOverride = &m
	}
	if redeemedBy.Valid {
		b := redeemedBy.Int64
		k.RedeemedBy = &b
	}
	if redeemedAt.Valid {
		t := redeemedAt.Time
		k.RedeemedAt = &t
	}
	return &k, nil
}

func insertKey(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, key *domain.AccessKey) error {
	query := `INSERT INTO access_keys (` + keyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := execer.ExecContext(ctx, query, key.ID, key.CodeHash, key.CodePrefix, string(key.TierClass),
		key.DurationUnits, key.Price, key.IsVIP, key.MaxJobSecondsOverride,
		key.Redeemed, key.RedeemedBy, key.RedeemedAt, key.CreatedBy, key.CreatedAt)
	return err
}

func (r *PostgresRepository) CreateKey(ctx context.Context, key *domain.AccessKey) error {
	return insertKey(ctx, r.db, key)
}

// CreateKeyWithDebit inserts the key and debits the reseller's balance in one
// transaction. The debit predicate guards the balance at the database, so two
// racing issuances can never drive it negative.
func (r *PostgresRepository) CreateKeyWithDebit(ctx context.Context, key *domain.AccessKey, resellerID int64, amount float64) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	debit := `UPDATE resellers SET balance = balance - $1 WHERE principal_id = $2 AND balance >= $1`
	res, errExec := tx.ExecContext(ctx, debit, amount, resellerID)
	if errExec != nil {
		return errExec
	}
	affected, errAffected := res.RowsAffected()
	if errAffected != nil {
		return errAffected
	}
	if affected == 0 {
		return fmt.Errorf("%w: reseller %d cannot cover %.2f", domain.ErrInsufficientBalance, resellerID, amount)
	}

	if errInsert := insertKey(ctx, tx, key); errInsert != nil {
		return errInsert
	}
	return tx.Commit()
}

func (r *PostgresRepository) GetKeyByHash(ctx context.Context, codeHash string) (*domain.AccessKey, error) {
	query := `SELECT ` + keyColumns + ` FROM access_keys WHERE code_hash = $1`
	row := r.db.QueryRowContext(ctx, query, codeHash)
	key, err := scanKey(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *PostgresRepository) ListKeys(ctx context.Context) ([]domain.AccessKey, error) {
	query := `SELECT ` + keyColumns + ` FROM access_keys ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var keys []domain.AccessKey
	for rows.Next() {
		k, errScan := scanKey(rows.Scan)
		if errScan != nil {
			return nil, errScan
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// RedeemKey flips the key unredeemed->redeemed and upserts the principal's
// grant in one transaction. The row lock serializes racing redemptions of the
// same code; the loser observes redeemed=true and gets ErrKeyAlreadyRedeemed.
func (r *PostgresRepository) RedeemKey(ctx context.Context, codeHash string, principalID int64, now time.Time) (*domain.AccessKey, *domain.AccessGrant, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return nil, nil, errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	query := `SELECT ` + keyColumns + ` FROM access_keys WHERE code_hash = $1 FOR UPDATE`
	row := tx.QueryRowContext(ctx, query, codeHash)
	key, errScan := scanKey(row.Scan)
	if errors.Is(errScan, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: unknown key code", domain.ErrKeyInvalid)
	}
	if errScan != nil {
		return nil, nil, errScan
	}
	if key.Redeemed {
		return nil, nil, fmt.Errorf("%w: key %s", domain.ErrKeyAlreadyRedeemed, key.CodePrefix)
	}

	update := `UPDATE access_keys SET redeemed = TRUE, redeemed_by = $1, redeemed_at = $2 WHERE id = $3`
	if _, errExec := tx.ExecContext(ctx, update, principalID, now, key.ID); errExec != nil {
		return nil, nil, errExec
	}

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
	upsert := `INSERT INTO access_grants (` + grantColumns + `)
			   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			   ON CONFLICT (principal_id) DO UPDATE SET
			   issuing_key = EXCLUDED.issuing_key, valid_until = EXCLUDED.valid_until,
			   is_vip = EXCLUDED.is_vip, max_job_seconds = EXCLUDED.max_job_seconds,
			   granted_by = EXCLUDED.granted_by, updated_at = EXCLUDED.updated_at`
	if _, errExec := tx.ExecContext(ctx, upsert, grant.PrincipalID, grant.IssuingKey, grant.ValidUntil,
		grant.IsVIP, grant.MaxJobSeconds, grant.GrantedBy, grant.CreatedAt, grant.UpdatedAt); errExec != nil {
		return nil, nil, errExec
	}

	if errCommit := tx.Commit(); errCommit != nil {
		return nil, nil, errCommit
	}

	key.Redeemed = true
	key.RedeemedBy = &principalID
	key.RedeemedAt = &now
	return key, grant, nil
}

// --- Rosters ---

func (r *PostgresRepository) isListed(ctx context.Context, table string, principalID int64) (bool, error) {
	query := `SELECT 1 FROM ` + table + ` WHERE principal_id = $1`
	var one int
	errRow := r.db.QueryRowContext(ctx, query, principalID).Scan(&one)
	if errors.Is(errRow, sql.ErrNoRows) {
		return false, nil
	}
	if errRow != nil {
		return false, errRow
	}
	return true, nil
}

func (r *PostgresRepository) listRoster(ctx context.Context, table string) ([]int64, error) {
	query := `SELECT principal_id FROM ` + table + ` ORDER BY added_at ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var ids []int64
	for rows.Next() {
		var id int64
		if errScan := rows.Scan(&id); errScan != nil {
			return nil, errScan
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) IsAdmin(ctx context.Context, principalID int64) (bool, error) {
	return r.isListed(ctx, "admins", principalID)
}

func (r *PostgresRepository) IsOwner(ctx context.Context, principalID int64) (bool, error) {
	return r.isListed(ctx, "owners", principalID)
}

func (r *PostgresRepository) AddAdmin(ctx context.Context, principalID, addedBy int64) error {
	query := `INSERT INTO admins (principal_id, added_by, added_at) VALUES ($1, $2, $3) ON CONFLICT (principal_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, principalID, addedBy, time.Now())
	return err
}

func (r *PostgresRepository) RemoveAdmin(ctx context.Context, principalID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE principal_id = $1`, principalID)
	return err
}

func (r *PostgresRepository) ListAdmins(ctx context.Context) ([]int64, error) {
	return r.listRoster(ctx, "admins")
}

func (r *PostgresRepository) AddOwner(ctx context.Context, principalID, addedBy int64) error {
	query := `INSERT INTO owners (principal_id, added_by, added_at) VALUES ($1, $2, $3) ON CONFLICT (principal_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, principalID, addedBy, time.Now())
	return err
}

func (r *PostgresRepository) RemoveOwner(ctx context.Context, principalID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM owners WHERE principal_id = $1`, principalID)
	return err
}

func (r *PostgresRepository) ListOwners(ctx context.Context) ([]int64, error) {
	return r.listRoster(ctx, "owners")
}

// --- Resellers ---

func (r *PostgresRepository) GetReseller(ctx context.Context, principalID int64) (*domain.ResellerAccount, error) {
	query := `SELECT principal_id, balance, added_by, added_at FROM resellers WHERE principal_id = $1`
	var a domain.ResellerAccount
	errRow := r.db.QueryRowContext(ctx, query, principalID).Scan(&a.PrincipalID, &a.Balance, &a.AddedBy, &a.AddedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &a, nil
}

func (r *PostgresRepository) AddReseller(ctx context.Context, account *domain.ResellerAccount) error {
	query := `INSERT INTO resellers (principal_id, balance, added_by, added_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, account.PrincipalID, account.Balance, account.AddedBy, account.AddedAt)
	return err
}

func (r *PostgresRepository) RemoveReseller(ctx context.Context, principalID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resellers WHERE principal_id = $1`, principalID)
	return err
}

func (r *PostgresRepository) ListResellers(ctx context.Context) ([]domain.ResellerAccount, error) {
	query := `SELECT principal_id, balance, added_by, added_at FROM resellers ORDER BY added_at ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var accounts []domain.ResellerAccount
	for rows.Next() {
		var a domain.ResellerAccount
		if errScan := rows.Scan(&a.PrincipalID, &a.Balance, &a.AddedBy, &a.AddedAt); errScan != nil {
			return nil, errScan
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AdjustResellerBalance applies delta with the non-negative invariant enforced
// in the UPDATE predicate.
func (r *PostgresRepository) AdjustResellerBalance(ctx context.Context, principalID int64, delta float64) error {
	query := `UPDATE resellers SET balance = balance + $1 WHERE principal_id = $2 AND balance + $1 >= 0`
	res, errExec := r.db.ExecContext(ctx, query, delta, principalID)
	if errExec != nil {
		return errExec
	}
	affected, errAffected := res.RowsAffected()
	if errAffected != nil {
		return errAffected
	}
	if affected == 0 {
		account, errGet := r.GetReseller(ctx, principalID)
		if errGet != nil {
			return errGet
		}
		if account == nil {
			return fmt.Errorf("%w: reseller %d", domain.ErrNotFound, principalID)
		}
		return fmt.Errorf("%w: reseller %d cannot absorb %.2f", domain.ErrInsufficientBalance, principalID, delta)
	}
	return nil
}

// --- Management API keys ---

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, principal_id, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys WHERE key_hash = $1`
	var k domain.APIKey
	var expiresAt sql.NullTime
	errRow := r.db.QueryRowContext(ctx, query, keyHash).Scan(&k.ID, &k.PrincipalID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, principal_id, name, key_hash, key_prefix, role, active, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, key.ID, key.PrincipalID, key.Name, key.KeyHash, key.KeyPrefix, string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	query := `SELECT id, principal_id, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var keys []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var expiresAt sql.NullTime
		if errScan := rows.Scan(&k.ID, &k.PrincipalID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt); errScan != nil {
			return nil, errScan
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			k.ExpiresAt = &t
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) DeleteAPIKey(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	return err
}

// --- Runtime settings ---

// Settings are stored as a single JSONB document so the shape can evolve
// without migrations; the service layer validates on load.
func (r *PostgresRepository) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	var data []byte
	errRow := r.db.QueryRowContext(ctx, `SELECT data FROM fleet_settings WHERE id = 1`).Scan(&data)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	var settings domain.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings document: %w", err)
	}
	return &settings, nil
}

func (r *PostgresRepository) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	query := `INSERT INTO fleet_settings (id, data, updated_at) VALUES (1, $1, $2)
			  ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query, data, time.Now())
	return err
}

// --- Audit trail ---

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	query := `INSERT INTO audit_logs (id, principal_id, action, resource_type, resource_id, details, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.PrincipalID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Details, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, principalID int64) ([]domain.AuditLog, error) {
	query := `SELECT id, principal_id, action, resource_type, resource_id, details, created_at FROM audit_logs WHERE principal_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, principalID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if errScan := rows.Scan(&l.ID, &l.PrincipalID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.CreatedAt); errScan != nil {
			return nil, errScan
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
