package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

const (
	pendingPrefix  = "pending:"
	identityPrefix = "identity:"
)

// RedisBridge implements core.Bridge on Redis via rueidis. TTL and eviction
// are delegated to the server; ConsumePending maps onto GETDEL, which gives
// the same one-winner guarantee as the in-process mutex.
type RedisBridge struct {
	client rueidis.Client
	opts   Options
}

// RedisOptions contains configuration for the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBridge creates a RedisBridge with the provided rueidis client.
func NewRedisBridge(client rueidis.Client, opts Options) *RedisBridge {
	return &RedisBridge{client: client, opts: opts.withDefaults()}
}

// NewRedisBridgeFromOptions creates a RedisBridge from connection options.
func NewRedisBridgeFromOptions(redisOpts RedisOptions, opts Options) (*RedisBridge, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{redisOpts.Addr},
		Password:    redisOpts.Password,
		SelectDB:    redisOpts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisBridge(client, opts), nil
}

// Close closes the Redis client connection.
func (r *RedisBridge) Close() {
	r.client.Close()
}

// StorePending stores a pending authorization record with the pending TTL.
func (r *RedisBridge) StorePending(ctx context.Context, token string, rec *core.PendingAuthorization) error {
	if token == "" {
		return ErrEmptyKey
	}
	if rec == nil {
		return ErrNilRecord
	}
	return r.set(ctx, pendingPrefix+token, rec, r.opts.PendingTTL)
}

// ConsumePending atomically removes and returns the pending record under
// token. GETDEL makes the read-and-delete a single server-side step.
func (r *RedisBridge) ConsumePending(ctx context.Context, token string) (*core.PendingAuthorization, error) {
	if token == "" {
		return nil, ErrEmptyKey
	}

	cmd := r.client.B().Getdel().Key(pendingPrefix + token).Build()
	result, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume pending entry from redis: %w", err)
	}

	var rec core.PendingAuthorization
	if err := json.Unmarshal([]byte(result), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending entry: %w", err)
	}
	return &rec, nil
}

// StoreIdentity stores an issued identity record with the identity TTL.
func (r *RedisBridge) StoreIdentity(ctx context.Context, code string, rec *core.IssuedIdentity) error {
	if code == "" {
		return ErrEmptyKey
	}
	if rec == nil {
		return ErrNilRecord
	}
	return r.set(ctx, identityPrefix+code, rec, r.opts.IdentityTTL)
}

// LookupIdentity returns the identity record under code without removing it.
// Uses client-side caching with a 10 second TTL since records never change
// after they are written.
func (r *RedisBridge) LookupIdentity(ctx context.Context, code string) (*core.IssuedIdentity, error) {
	if code == "" {
		return nil, ErrEmptyKey
	}

	cmd := r.client.B().Get().Key(identityPrefix + code).Cache()
	result, err := r.client.DoCache(ctx, cmd, 10*time.Second).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity entry from redis: %w", err)
	}

	var rec core.IssuedIdentity
	if err := json.Unmarshal([]byte(result), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity entry: %w", err)
	}
	return &rec, nil
}

func (r *RedisBridge) set(ctx context.Context, key string, rec any, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	cmd := r.client.B().Set().Key(key).Value(string(data)).ExSeconds(int64(ttl.Seconds())).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save entry to redis: %w", err)
	}
	return nil
}
