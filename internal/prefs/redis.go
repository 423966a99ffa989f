package prefs

import (
	"context"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "transcript:prefs:"

// RedisStore keeps each scope as a hash of "0"/"1" fields.
type RedisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Load(ctx context.Context, scope string) (map[string]bool, error) {
	raw, err := r.rdb.HGetAll(ctx, keyPrefix+scope).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		b, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		out[k] = b
	}
	return out, nil
}

func (r *RedisStore) Save(ctx context.Context, scope, key string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	return r.rdb.HSet(ctx, keyPrefix+scope, key, v).Err()
}
