package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"panel-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	expiration = 5 * time.Minute
)

var (
	ErrBalanceNotFound = errors.New("balance not found in cache")
)

type BalanceRepository struct {
	client *redis.Client
	prefix string
}

func NewBalanceRepository(client *redis.Client) *BalanceRepository {
	return &BalanceRepository{
		client: client,
		prefix: "owner:",
	}
}

// SetBalance caches the owner's wallet balance and store credit as one
// value, so the two pools can never be served from different points in
// time.
func (r *BalanceRepository) SetBalance(ctx context.Context, ownerID string, snap models.BalanceSnapshot) error {
	key := r.getBalanceKey(ownerID)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}

	err = r.client.Set(ctx, key, payload, expiration).Err()
	if err != nil {
		return fmt.Errorf("failed to set balance in redis: %w", err)
	}

	return nil
}

func (r *BalanceRepository) GetBalance(ctx context.Context, ownerID string) (models.BalanceSnapshot, error) {
	var snap models.BalanceSnapshot

	key := r.getBalanceKey(ownerID)

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return snap, ErrBalanceNotFound
		}
		return snap, fmt.Errorf("failed to get balance from redis: %w", err)
	}

	if err := json.Unmarshal(payload, &snap); err != nil {
		return snap, fmt.Errorf("failed to parse balance from redis: %w", err)
	}

	return snap, nil
}

func (r *BalanceRepository) DeleteBalance(ctx context.Context, ownerID string) error {
	key := r.getBalanceKey(ownerID)

	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete balance from redis: %w", err)
	}

	return nil
}

func (r *BalanceRepository) getBalanceKey(ownerID string) string {
	return r.prefix + ownerID + ":balance"
}
