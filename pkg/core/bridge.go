package core

import "context"

// PendingAuthorization correlates a redirect sent to WeChat with the relying
// party that asked for it. The record is keyed by the opaque bridging token
// used as the upstream state parameter, and is consumed at most once.
type PendingAuthorization struct {
	// State is the relying party's original state, after any override-alias
	// prefix has been stripped. It must be echoed back verbatim.
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
	ClientID    string `json:"client_id"`
	AppAlias    string `json:"app_alias"`
	CreatedAt   int64  `json:"created_at"`
}

// IssuedIdentity is an authenticated WeChat user bound to the client that
// started the flow. It is keyed by the authorization code handed to the
// relying party, which doubles as the bearer access token.
type IssuedIdentity struct {
	UnionID       string `json:"unionid"`
	OpenID        string `json:"openid"`
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar"`
	OriginalState string `json:"original_state"`
	ClientID      string `json:"client_id"`
	CreatedAt     int64  `json:"created_at"`
}

// Bridge holds the two short-lived correlation caches that carry a flow
// across its redirects. A miss never reveals whether the key was absent,
// already consumed, or expired.
type Bridge interface {
	// StorePending inserts or overwrites the pending record under token.
	StorePending(ctx context.Context, token string, rec *PendingAuthorization) error

	// ConsumePending atomically removes and returns the record under token.
	// Under concurrent calls with the same token exactly one caller gets the
	// record; all others get a miss. This is the anti-replay guarantee.
	ConsumePending(ctx context.Context, token string) (*PendingAuthorization, error)

	// StoreIdentity inserts or overwrites the identity record under code.
	StoreIdentity(ctx context.Context, code string, rec *IssuedIdentity) error

	// LookupIdentity returns the record under code without removing it, so
	// token and userinfo requests can repeat within the TTL.
	LookupIdentity(ctx context.Context, code string) (*IssuedIdentity, error)
}
