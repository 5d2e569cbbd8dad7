package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kiosk/internal/attendance"
)

const keyPrefix = "kiosk:ledger:"

// upsert retries under WATCH contention before giving up.
const maxUpsertRetries = 5

// RedisStore persists each classroom ledger as one JSON document under
// kiosk:ledger:<classroomKey>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type ledgerDoc struct {
	Students []attendance.Student `json:"students"`
}

func redisKey(classroomKey string) string {
	return keyPrefix + classroomKey
}

// Get returns the classroom's records, empty when the key is absent.
func (r *RedisStore) Get(ctx context.Context, classroomKey string) ([]attendance.Student, error) {
	raw, err := r.client.Get(ctx, redisKey(classroomKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get %s failed: %w", classroomKey, err)
	}
	var doc ledgerDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ledger: decode %s failed: %w", classroomKey, err)
	}
	return doc.Students, nil
}

// Set overwrites the classroom's records.
func (r *RedisStore) Set(ctx context.Context, classroomKey string, students []attendance.Student) error {
	raw, err := json.Marshal(ledgerDoc{Students: students})
	if err != nil {
		return fmt.Errorf("ledger: encode %s failed: %w", classroomKey, err)
	}
	if err := r.client.Set(ctx, redisKey(classroomKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("ledger: set %s failed: %w", classroomKey, err)
	}
	return nil
}

// Upsert performs the read-modify-write under WATCH so a concurrent
// writer to the same classroom forces a retry instead of being silently
// overwritten.
func (r *RedisStore) Upsert(ctx context.Context, classroomKey string, student attendance.Student) error {
	key := redisKey(classroomKey)

	txn := func(tx *redis.Tx) error {
		var doc ledgerDoc
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// first write for this classroom
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
		}

		doc.Students = upsert(doc.Students, student)
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpsertRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("ledger: upsert %s failed: %w", classroomKey, err)
		}
		return nil
	}
	return fmt.Errorf("ledger: upsert %s failed: too much contention", classroomKey)
}

// Reset deletes the classroom's ledger document.
func (r *RedisStore) Reset(ctx context.Context, classroomKey string) error {
	if err := r.client.Del(ctx, redisKey(classroomKey)).Err(); err != nil {
		return fmt.Errorf("ledger: reset %s failed: %w", classroomKey, err)
	}
	return nil
}
