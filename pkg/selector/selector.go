// Package selector decides which configured WeChat application an inbound
// authorization request should use.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-training/wechat-oauth-bridge/pkg/config"
	"github.com/go-training/wechat-oauth-bridge/pkg/core"
	"github.com/go-training/wechat-oauth-bridge/pkg/wechat"
)

// Delimiter separates an override alias from the relying party's own state.
const Delimiter = ":"

var (
	// ErrAliasNotFound is returned when the state carries an override alias
	// that no configured application matches.
	ErrAliasNotFound = errors.New("wechat app alias not found")
	// ErrKindNotConfigured is returned when no application of the required
	// kind exists in the registry.
	ErrKindNotConfigured = errors.New("wechat app kind not configured")
)

// Selector picks an application from the registry. It is a pure function of
// configuration and request inputs; no state, no randomness.
type Selector struct {
	registry *config.Registry
}

// New creates a Selector over the given registry.
func New(registry *config.Registry) *Selector {
	return &Selector{registry: registry}
}

// Select resolves the target application for a request.
//
// A state of the form "alias:rest" forces the application with that alias;
// only the first delimiter splits, so "allow:rest:with:colons" selects
// "allow" and passes "rest:with:colons" through as the residual state.
// Without an override, requests from the WeChat in-app browser get the first
// official-account application and everything else gets the first
// open-platform application.
func (s *Selector) Select(state, userAgent string) (*core.WeChatApp, string, error) {
	if alias, rest, found := strings.Cut(state, Delimiter); found {
		app, ok := s.registry.App(alias)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
		}
		return app, rest, nil
	}

	kind := core.KindOpenPlatform
	if wechat.IsWeChatBrowser(userAgent) {
		kind = core.KindOfficialAccount
	}
	app, ok := s.registry.FirstOfKind(kind)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrKindNotConfigured, kind)
	}
	return app, state, nil
}
