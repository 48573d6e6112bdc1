package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quietpush/enclavecore/config"
)

// RedisStore implements Store against a Redis cluster, using the key
// layout enclave/genesis-lock/{track} for the genesis lock and
// enclave/peers/{track}/{peer_id} for registry entries.
type RedisStore struct {
	rdb *redis.ClusterClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a RedisStore from a coordinator's Redis config.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{rdb: redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})}
}

func lockKey(track string) string {
	return fmt.Sprintf("enclave/genesis-lock/%s", track)
}

func peerKeyPrefix(track string) string {
	return fmt.Sprintf("enclave/peers/%s/", track)
}

func peerKey(track, peerID string) string {
	return peerKeyPrefix(track) + peerID
}

func (r *RedisStore) AcquireLock(ctx context.Context, track string, holder string, ttl time.Duration) (bool, error) {
	got, err := r.rdb.SetNX(ctx, lockKey(track), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring genesis lock for track %q: %w", track, err)
	}
	return got, nil
}

func (r *RedisStore) ReleaseLock(ctx context.Context, track string, holder string) error {
	cur, err := r.rdb.Get(ctx, lockKey(track)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading genesis lock for track %q: %w", track, err)
	}
	if cur != holder {
		return fmt.Errorf("genesis lock for track %q is held by a different holder", track)
	}
	return r.rdb.Del(ctx, lockKey(track)).Err()
}

func (r *RedisStore) Write(ctx context.Context, track, peerID string, entry PeerEntry, ttl time.Duration) error {
	bs, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, peerKey(track, peerID), bs, ttl).Err()
}

func (r *RedisStore) Read(ctx context.Context, track string) (map[string]PeerEntry, error) {
	prefix := peerKeyPrefix(track)
	var mu sync.Mutex
	out := make(map[string]PeerEntry)

	err := r.rdb.ForEachShard(ctx, func(ctx context.Context, shard *redis.Client) error {
		keys, err := shard.Keys(ctx, prefix+"*").Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			bs, err := shard.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return err
			}
			var entry PeerEntry
			if err := json.Unmarshal(bs, &entry); err != nil {
				return fmt.Errorf("decoding peer entry %q: %w", key, err)
			}
			mu.Lock()
			out[key[len(prefix):]] = entry
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
