package profilex

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// upsertAttempts bounds the optimistic-locking retries for one Upsert.
// High enough that a burst of writers on one subject serializes instead of
// erroring.
const upsertAttempts = 16

// RedisStore is a RecordStore backed by Redis. Each subject maps to one
// hash whose fields are source names holding JSON-encoded records. Upsert
// uses WATCH-based optimistic locking so the error-counter update stays
// atomic under concurrent writers.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ RecordStore = &RedisStore{}

// RedisStoreConfig holds configuration for RedisStore
type RedisStoreConfig struct {
	// Client is the Redis client (supports both single and cluster)
	Client redis.UniversalClient

	// KeyPrefix is the prefix for all subject keys (optional)
	KeyPrefix string
}

// NewRedisStore creates a new Redis-based record store with configuration
func NewRedisStore(config *RedisStoreConfig) *RedisStore {
	if config.Client == nil {
		panic("Client is required")
	}

	return &RedisStore{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}
}

func (s *RedisStore) key(subject string) string {
	return s.keyPrefix + "subject:" + subject
}

// FindAll returns the records for subject, ordered by source name.
func (s *RedisStore) FindAll(ctx context.Context, subject string) ([]Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(subject)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load records for subject: %s", subject)
	}

	records := make([]Record, 0, len(fields))
	for source, data := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, errors.Wrapf(err, "failed to decode record for subject: %s source: %s", subject, source)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Source < records[j].Source
	})
	return records, nil
}

// Find returns the record for one (subject, source) pair.
func (s *RedisStore) Find(ctx context.Context, subject, source string) (Record, error) {
	data, err := s.client.HGet(ctx, s.key(subject), source).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, &ErrRecordNotFound{Subject: subject, Source: source}
		}
		return Record{}, errors.Wrapf(err, "failed to load record for subject: %s source: %s", subject, source)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrapf(err, "failed to decode record for subject: %s source: %s", subject, source)
	}
	return rec, nil
}

// Upsert creates or updates the record for (subject, source). The write is
// retried when another writer touches the subject's hash mid-transaction.
func (s *RedisStore) Upsert(ctx context.Context, subject, source string, patch Patch) error {
	key := s.key(subject)

	txn := func(tx *redis.Tx) error {
		rec := Record{Subject: subject, Source: source}

		data, err := tx.HGet(ctx, key, source).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return errors.Wrap(err, "failed to read current record")
		}
		if err == nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return errors.Wrap(err, "failed to decode current record")
			}
		}

		patch.apply(&rec)

		encoded, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "failed to encode record")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, source, encoded)
			return nil
		})
		return err
	}

	for i := 0; i < upsertAttempts; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return errors.Wrapf(err, "failed to upsert record for subject: %s source: %s", subject, source)
	}
	return errors.Errorf("upsert contention for subject: %s source: %s", subject, source)
}
