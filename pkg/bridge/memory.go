package bridge

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

// MemoryBridge implements core.Bridge with two in-process LRU caches. Entries
// vanish on TTL expiry regardless of capacity pressure, and the caches evict
// least-recently-used entries beyond capacity.
//
// The expirable caches lock per operation, which is not enough for
// ConsumePending: its read and delete must be one indivisible step so that
// racing callbacks on a single token yield exactly one winner. The outer
// mutex provides that.
type MemoryBridge struct {
	mu         sync.Mutex
	pending    *expirable.LRU[string, *core.PendingAuthorization]
	identities *expirable.LRU[string, *core.IssuedIdentity]
}

// NewMemoryBridge creates a MemoryBridge with the given bounds.
func NewMemoryBridge(opts Options) *MemoryBridge {
	opts = opts.withDefaults()
	return &MemoryBridge{
		pending:    expirable.NewLRU[string, *core.PendingAuthorization](opts.Capacity, nil, opts.PendingTTL),
		identities: expirable.NewLRU[string, *core.IssuedIdentity](opts.Capacity, nil, opts.IdentityTTL),
	}
}

// StorePending inserts or overwrites a pending authorization record.
func (m *MemoryBridge) StorePending(_ context.Context, token string, rec *core.PendingAuthorization) error {
	if token == "" {
		return ErrEmptyKey
	}
	if rec == nil {
		return ErrNilRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending.Add(token, rec)
	return nil
}

// ConsumePending removes and returns the pending record under token.
func (m *MemoryBridge) ConsumePending(_ context.Context, token string) (*core.PendingAuthorization, error) {
	if token == "" {
		return nil, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.pending.Get(token)
	if !ok {
		return nil, ErrNotFound
	}
	m.pending.Remove(token)
	return rec, nil
}

// StoreIdentity inserts or overwrites an issued identity record.
func (m *MemoryBridge) StoreIdentity(_ context.Context, code string, rec *core.IssuedIdentity) error {
	if code == "" {
		return ErrEmptyKey
	}
	if rec == nil {
		return ErrNilRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.identities.Add(code, rec)
	return nil
}

// LookupIdentity returns the identity record under code without removing it.
func (m *MemoryBridge) LookupIdentity(_ context.Context, code string) (*core.IssuedIdentity, error) {
	if code == "" {
		return nil, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.identities.Get(code)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}
