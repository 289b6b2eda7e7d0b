package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

// setupRedisBridge creates a test bridge connected to localhost:6379.
// Tests are skipped when Redis is not available.
func setupRedisBridge(t *testing.T, opts Options) *RedisBridge {
	t.Helper()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{"localhost:6379"},
	})
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}

	b := NewRedisBridge(client, opts)

	ctx := context.Background()
	cmd := b.client.B().Ping().Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		b.Close()
		t.Skipf("Cannot connect to Redis, skipping test: %v", err)
	}

	t.Cleanup(func() {
		cleanupRedisKeys(t, b)
		b.Close()
	})

	return b
}

// cleanupRedisKeys removes bridge keys left over from the test.
func cleanupRedisKeys(t *testing.T, b *RedisBridge) {
	t.Helper()
	ctx := context.Background()

	for _, prefix := range []string{pendingPrefix, identityPrefix} {
		scanCmd := b.client.B().Scan().Cursor(0).Match(prefix + "*").Count(100).Build()
		scanResult, err := b.client.Do(ctx, scanCmd).AsScanEntry()
		if err != nil {
			continue
		}
		for _, key := range scanResult.Elements {
			delCmd := b.client.B().Del().Key(key).Build()
			_ = b.client.Do(ctx, delCmd).Error()
		}
	}
}

func TestRedisBridge_PendingConsumeOnce(t *testing.T) {
	b := setupRedisBridge(t, Options{})
	ctx := context.Background()

	token := NewToken()
	rec := &core.PendingAuthorization{
		State:       "xyz",
		RedirectURI: "https://rp.example.com/cb",
		ClientID:    "c1",
		AppAlias:    "web",
		CreatedAt:   time.Now().Unix(),
	}
	if err := b.StorePending(ctx, token, rec); err != nil {
		t.Fatalf("StorePending() error = %v", err)
	}

	got, err := b.ConsumePending(ctx, token)
	if err != nil {
		t.Fatalf("ConsumePending() error = %v", err)
	}
	if got.State != rec.State || got.ClientID != rec.ClientID {
		t.Errorf("ConsumePending() = %+v, want %+v", got, rec)
	}

	if _, err := b.ConsumePending(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ConsumePending() error = %v, want ErrNotFound", err)
	}
}

func TestRedisBridge_IdentityLookup(t *testing.T) {
	b := setupRedisBridge(t, Options{})
	ctx := context.Background()

	code := NewToken()
	rec := &core.IssuedIdentity{UnionID: "u1", OpenID: "o1", Nickname: "n", ClientID: "c1"}
	if err := b.StoreIdentity(ctx, code, rec); err != nil {
		t.Fatalf("StoreIdentity() error = %v", err)
	}

	for i := range 2 {
		got, err := b.LookupIdentity(ctx, code)
		if err != nil {
			t.Fatalf("LookupIdentity() attempt %d error = %v", i, err)
		}
		if got.UnionID != "u1" {
			t.Errorf("LookupIdentity() UnionID = %q, want u1", got.UnionID)
		}
	}

	if _, err := b.LookupIdentity(ctx, NewToken()); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupIdentity(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRedisBridge_PendingExpiry(t *testing.T) {
	b := setupRedisBridge(t, Options{PendingTTL: 1 * time.Second})
	ctx := context.Background()

	token := NewToken()
	if err := b.StorePending(ctx, token, &core.PendingAuthorization{ClientID: "c1"}); err != nil {
		t.Fatalf("StorePending() error = %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := b.ConsumePending(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("ConsumePending() after TTL error = %v, want ErrNotFound", err)
	}
}
