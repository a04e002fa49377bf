package tracker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// RedisStore keeps tracker entries in one Redis hash, field per claim key.
// Durability follows the server's persistence settings (appendonly yes is
// expected for production use).
type RedisStore struct {
	rdb  *redis.Client
	hash string
}

// NewRedisStore connects to addr and stores entries under the hash named prefix
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "pfml:submitted"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", addr)
	}
	return &RedisStore{rdb: rdb, hash: prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (model.TrackerEntry, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.TrackerEntry{}, false, nil
	}
	if err != nil {
		return model.TrackerEntry{}, false, eris.Wrapf(err, "redis: hget %s", key)
	}

	var entry model.TrackerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.TrackerEntry{}, false, eris.Wrapf(err, "redis: decode %s", key)
	}
	entry.Key = key
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, entry model.TrackerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrapf(err, "redis: encode %s", entry.Key)
	}
	return eris.Wrapf(s.rdb.HSet(ctx, s.hash, entry.Key, data).Err(), "redis: hset %s", entry.Key)
}

func (s *RedisStore) All(ctx context.Context) ([]model.TrackerEntry, error) {
	fields, err := s.rdb.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: hgetall")
	}

	entries := make([]model.TrackerEntry, 0, len(fields))
	for key, raw := range fields {
		var entry model.TrackerEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, eris.Wrapf(err, "redis: decode %s", key)
		}
		entry.Key = key
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
