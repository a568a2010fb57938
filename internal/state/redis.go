package state

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists watcher state under a key prefix:
//
//	<prefix>:cursor   string, last-seen sequence
//	<prefix>:keys     list, processed-event keys oldest first
//	<prefix>:history  list, notification entries newest first (LPUSH+LTRIM)
type RedisStore struct {
	rds    *redis.Client
	prefix string
}

func NewRedisStore(rds *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "relay:watcher"
	}

	return &RedisStore{rds: rds, prefix: prefix}
}

func (s *RedisStore) LoadCursor(ctx context.Context) (int64, error) {
	v, err := s.rds.Get(ctx, s.prefix+":cursor").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(v, 10, 64)
}

func (s *RedisStore) SaveCursor(ctx context.Context, cursor int64) error {
	return s.rds.Set(ctx, s.prefix+":cursor", strconv.FormatInt(cursor, 10), 0).Err()
}

func (s *RedisStore) LoadKeys(ctx context.Context) ([]string, error) {
	keys, err := s.rds.LRange(ctx, s.prefix+":keys", 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	return keys, nil
}

func (s *RedisStore) SaveKeys(ctx context.Context, keys []string) error {
	pipe := s.rds.TxPipeline()
	pipe.Del(ctx, s.prefix+":keys")
	if len(keys) > 0 {
		vals := make([]interface{}, len(keys))
		for i, k := range keys {
			vals[i] = k
		}
		pipe.RPush(ctx, s.prefix+":keys", vals...)
	}
	_, err := pipe.Exec(ctx)

	return err
}

func (s *RedisStore) AppendHistory(ctx context.Context, entry []byte, max int) error {
	pipe := s.rds.TxPipeline()
	pipe.LPush(ctx, s.prefix+":history", entry)
	if max > 0 {
		pipe.LTrim(ctx, s.prefix+":history", 0, int64(max)-1)
	}
	_, err := pipe.Exec(ctx)

	return err
}
