package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"livraria/backend/internal/domain"
)

const (
	DefaultRedisKey = "livraria:ledger:transactions"
	maxWatchRetries = 5
)

// Redis keeps the array under a single key, updated with optimistic locking.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Append(ctx context.Context, entry domain.FinancialTransaction) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		entries, err := decode(raw)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(append(entries, entry))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("ledger append: too much contention on %s", r.key)
}

func (r *Redis) List(ctx context.Context) ([]domain.FinancialTransaction, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.FinancialTransaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}
