// Package bridge implements the two time-bounded correlation caches the
// handshake runs on: pending authorizations awaiting the WeChat callback,
// and issued identities awaiting token and userinfo calls.
package bridge

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned on any cache miss. The same error covers keys
	// that never existed, were already consumed, and expired entries, so a
	// probing caller learns nothing from the failure mode.
	ErrNotFound = errors.New("entry not found")
	// ErrEmptyKey is returned when a token or code string is empty.
	ErrEmptyKey = errors.New("key cannot be empty")
	// ErrNilRecord is returned when attempting to store a nil record.
	ErrNilRecord = errors.New("record cannot be nil")
)

const (
	// DefaultPendingTTL bounds the window between redirecting to WeChat and
	// receiving its callback.
	DefaultPendingTTL = 5 * time.Minute
	// DefaultIdentityTTL bounds the window between callback completion and
	// the relying party's token and userinfo calls.
	DefaultIdentityTTL = 10 * time.Minute
	// DefaultCapacity bounds each cache; least-recently-used entries are
	// evicted beyond it.
	DefaultCapacity = 10000
)

// Options tunes the TTL and capacity bounds shared by all backends.
type Options struct {
	PendingTTL  time.Duration
	IdentityTTL time.Duration
	Capacity    int
}

// withDefaults fills unset fields with the default bounds.
func (o Options) withDefaults() Options {
	if o.PendingTTL <= 0 {
		o.PendingTTL = DefaultPendingTTL
	}
	if o.IdentityTTL <= 0 {
		o.IdentityTTL = DefaultIdentityTTL
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	return o
}

// NewToken mints an opaque, unguessable key for either cache: 32 bytes of
// crypto/rand, base64url without padding.
func NewToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
