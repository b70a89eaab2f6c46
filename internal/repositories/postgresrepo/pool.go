package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"panel-service/internal/models"

	"github.com/jmoiron/sqlx"
)

var (
	ErrProxyNotFound   = errors.New("proxy not found")
	ErrAccountNotFound = errors.New("provider account not found")
)

type PoolRepository struct {
	db *sqlx.DB
}

func NewPoolRepository(db *sqlx.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// GetProxy get a proxy by ID
func (r *PoolRepository) GetProxy(ctx context.Context, proxyID string) (*models.Proxy, error) {
	var proxy models.Proxy

	query := `
		SELECT id, session_id, is_active, last_tested_at, last_ip, response_time_ms,
			consecutive_failures, total_failures, cooldown_until, created_at, updated_at
		FROM proxies WHERE id = $1
	`

	err := r.db.GetContext(ctx, &proxy, query, proxyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProxyNotFound
		}
		return nil, fmt.Errorf("failed to get proxy from postgres: %w", err)
	}

	return &proxy, nil
}

// GetAccount get a provider account by ID
func (r *PoolRepository) GetAccount(ctx context.Context, accountID string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount

	query := `
		SELECT id, username, password, proxy_id, is_active, consecutive_failures,
			cooldown_until, created_at, updated_at
		FROM provider_accounts WHERE id = $1
	`

	err := r.db.GetContext(ctx, &account, query, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get provider account from postgres: %w", err)
	}

	return &account, nil
}

// RecordProxySuccess stores a passing connectivity probe: latency,
// observed egress IP, failure streak reset.
func (r *PoolRepository) RecordProxySuccess(ctx context.Context, proxyID string, responseTimeMs int64, egressIP string) error {
	query := `
		UPDATE proxies
		SET last_tested_at = NOW(),
			response_time_ms = $1,
			last_ip = $2,
			consecutive_failures = 0,
			updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, responseTimeMs, egressIP, proxyID)
	if err != nil {
		return fmt.Errorf("failed to record proxy success: %w", err)
	}

	return requireRow(result, ErrProxyNotFound)
}

// RecordProxyFailure bumps both failure counters. No deactivation
// threshold here; the counters are advisory for worker scheduling.
func (r *PoolRepository) RecordProxyFailure(ctx context.Context, proxyID string) error {
	query := `
		UPDATE proxies
		SET last_tested_at = NOW(),
			consecutive_failures = consecutive_failures + 1,
			total_failures = total_failures + 1,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, proxyID)
	if err != nil {
		return fmt.Errorf("failed to record proxy failure: %w", err)
	}

	return requireRow(result, ErrProxyNotFound)
}

// SetAccountProxy points the account at a proxy; nil clears it.
func (r *PoolRepository) SetAccountProxy(ctx context.Context, accountID string, proxyID *string) error {
	query := `UPDATE provider_accounts SET proxy_id = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, proxyID, accountID)
	if err != nil {
		return fmt.Errorf("failed to set account proxy: %w", err)
	}

	return requireRow(result, ErrAccountNotFound)
}

// ToggleAccount flips is_active and returns the updated row.
// Reactivation resets the failure streak and clears the cooldown, a
// deliberate operator recovery action.
func (r *PoolRepository) ToggleAccount(ctx context.Context, accountID string) (*models.ProviderAccount, error) {
	query := `
		UPDATE provider_accounts
		SET is_active = NOT is_active,
			consecutive_failures = CASE WHEN NOT is_active THEN 0 ELSE consecutive_failures END,
			cooldown_until = CASE WHEN NOT is_active THEN NULL ELSE cooldown_until END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, username, password, proxy_id, is_active, consecutive_failures,
			cooldown_until, created_at, updated_at
	`

	var account models.ProviderAccount
	err := r.db.GetContext(ctx, &account, query, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to toggle provider account: %w", err)
	}

	return &account, nil
}

func requireRow(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return missing
	}
	return nil
}
