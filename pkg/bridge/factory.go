package bridge

import (
	"fmt"
	"strings"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

// Type represents the bridge backend.
type Type string

const (
	// TypeMemory represents the in-process LRU backend.
	TypeMemory Type = "memory"
	// TypeRedis represents the Redis backend.
	TypeRedis Type = "redis"
)

// Config contains configuration for creating a bridge.
type Config struct {
	// Backend specifies the bridge backend (memory or redis).
	Backend Type
	// Options tunes TTL and capacity bounds.
	Options Options
	// Redis contains Redis-specific configuration.
	Redis RedisOptions
}

// New creates a bridge instance from configuration.
// Returns an error if the backend type is invalid or creation fails.
func New(config Config) (core.Bridge, error) {
	switch config.Backend {
	case TypeMemory:
		return NewMemoryBridge(config.Options), nil
	case TypeRedis:
		return NewRedisBridgeFromOptions(config.Redis, config.Options)
	default:
		return nil, fmt.Errorf("unsupported bridge backend: %s", config.Backend)
	}
}

// ParseType parses a string into a Type.
// Returns TypeMemory for invalid inputs.
func ParseType(s string) Type {
	switch strings.ToLower(s) {
	case "memory":
		return TypeMemory
	case "redis":
		return TypeRedis
	default:
		return TypeMemory
	}
}

// String returns the string representation of a Type.
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the Type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeMemory, TypeRedis:
		return true
	default:
		return false
	}
}
