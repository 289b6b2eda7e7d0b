// Package flow orchestrates the four-stage handshake that turns WeChat's two
// OAuth dialects into a standard authorization-code surface: authorize,
// upstream callback, token exchange, and userinfo.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/go-training/wechat-oauth-bridge/pkg/bridge"
	"github.com/go-training/wechat-oauth-bridge/pkg/config"
	"github.com/go-training/wechat-oauth-bridge/pkg/core"
	"github.com/go-training/wechat-oauth-bridge/pkg/selector"
	"github.com/go-training/wechat-oauth-bridge/pkg/wechat"
)

// ServiceName identifies this service in the health response.
const ServiceName = "wechat-oauth-bridge"

// accessTokenTTL is what the token endpoint advertises. The access token is
// the authorization code itself; its real lifetime is the identity cache TTL.
const accessTokenTTL = 600

// defaultUpstreamTimeout bounds each WeChat API call so a hung upstream
// cannot strand the callback handler.
const defaultUpstreamTimeout = 10 * time.Second

// IdentityProvider is the outbound surface the controller needs from the
// WeChat client. *wechat.Client satisfies it; tests substitute a fake.
type IdentityProvider interface {
	AuthorizeURL(app *core.WeChatApp, callbackURL, state, scope string) (string, error)
	ExchangeCode(ctx context.Context, app *core.WeChatApp, code string) (*wechat.TokenResponse, error)
	FetchUserInfo(ctx context.Context, accessToken, openID string) (*wechat.Profile, error)
}

// Controller enforces the handshake invariants over the registry, the state
// bridge, and the provider client. It owns no mutable state of its own.
type Controller struct {
	registry        *config.Registry
	selector        *selector.Selector
	bridge          core.Bridge
	provider        IdentityProvider
	basePath        string
	externalURL     string
	upstreamTimeout time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithBasePath mounts the routes under a fixed prefix (e.g. "/wechat") and
// includes it in derived callback URLs.
func WithBasePath(basePath string) Option {
	return func(ct *Controller) {
		ct.basePath = strings.TrimSuffix(basePath, "/")
	}
}

// WithExternalURL overrides callback-URL derivation with a fixed public base
// URL, for deployments behind proxies that rewrite paths.
func WithExternalURL(externalURL string) Option {
	return func(ct *Controller) {
		ct.externalURL = strings.TrimSuffix(externalURL, "/")
	}
}

// WithUpstreamTimeout bounds each upstream WeChat call.
func WithUpstreamTimeout(timeout time.Duration) Option {
	return func(ct *Controller) {
		ct.upstreamTimeout = timeout
	}
}

// New creates a Controller.
func New(registry *config.Registry, b core.Bridge, provider IdentityProvider, opts ...Option) *Controller {
	ct := &Controller{
		registry:        registry,
		selector:        selector.New(registry),
		bridge:          b,
		provider:        provider,
		upstreamTimeout: defaultUpstreamTimeout,
	}
	for _, opt := range opts {
		opt(ct)
	}
	return ct
}

// RegisterRoutes mounts the HTTP surface on the router. The caller applies
// the base path by passing a route group.
func (ct *Controller) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", ct.Health)
	r.GET("/authorize", ct.Authorize)
	r.GET("/callback", ct.Callback)
	r.POST("/oidc/token", ct.Token)
	r.GET("/oidc/me", ct.UserInfo)
}

// Health is the liveness endpoint.
func (ct *Controller) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

// Authorize starts a flow: it validates the relying party, picks a WeChat
// application, parks the relying party's state and redirect URI under a
// fresh bridging token, and redirects to WeChat with that token as the
// upstream state. The relying party's raw state never reaches WeChat.
func (ct *Controller) Authorize(c *gin.Context) {
	ctx := c.Request.Context()
	log := core.LoggerFromCtx(ctx)

	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	state := c.Query("state")
	scope := c.Query("scope")

	if clientID == "" || redirectURI == "" {
		writeError(c, invalidRequest("client_id and redirect_uri are required"))
		return
	}

	if _, ok := ct.registry.Client(clientID); !ok {
		writeError(c, invalidClient("unknown client"))
		return
	}

	app, residualState, err := ct.selector.Select(state, c.GetHeader("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, selector.ErrAliasNotFound):
			writeError(c, invalidRequest(err.Error()))
		case errors.Is(err, selector.ErrKindNotConfigured):
			writeError(c, serverError(err.Error()))
		default:
			writeError(c, serverError("application selection failed"))
		}
		return
	}

	token := bridge.NewToken()
	rec := &core.PendingAuthorization{
		State:       residualState,
		RedirectURI: redirectURI,
		ClientID:    clientID,
		AppAlias:    app.Alias,
		CreatedAt:   time.Now().Unix(),
	}
	if err := ct.bridge.StorePending(ctx, token, rec); err != nil {
		log.Error("Failed to store pending authorization", "error", err)
		writeError(c, serverError("failed to persist authorization state"))
		return
	}

	authURL, err := ct.provider.AuthorizeURL(app, ct.callbackURL(c), token, scope)
	if err != nil {
		log.Error("Failed to build authorize URL", "alias", app.Alias, "error", err)
		writeError(c, serverError("failed to build provider authorize url"))
		return
	}

	addRequestAttributes(ctx,
		attribute.String("oauth.client_id", clientID),
		attribute.String("wechat.app_alias", app.Alias),
		attribute.String("wechat.app_kind", app.Kind.String()),
	)
	log.Info("Authorization dispatched",
		"client_id", clientID,
		"alias", app.Alias,
		"kind", app.Kind,
		"state", core.TruncateSecret(token),
	)

	c.Redirect(http.StatusFound, authURL)
}

// Callback handles WeChat's redirect back: it consumes the bridging token
// (at most once), completes the upstream exchange, issues an identity code,
// and returns the user to the relying party with its original state echoed
// byte-for-byte.
func (ct *Controller) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	log := core.LoggerFromCtx(ctx)

	upstreamCode := c.Query("code")
	upstreamState := c.Query("state")
	if upstreamCode == "" || upstreamState == "" {
		writeError(c, invalidRequest("code and state are required"))
		return
	}

	pending, err := ct.bridge.ConsumePending(ctx, upstreamState)
	if err != nil {
		log.Error("Pending state rejected", "state", core.TruncateSecret(upstreamState), "error", err)
		writeError(c, invalidRequest("state invalid, expired, or replayed"))
		return
	}

	app, ok := ct.registry.App(pending.AppAlias)
	if !ok {
		log.Error("Application configuration lost", "alias", pending.AppAlias)
		writeError(c, serverError("application configuration lost"))
		return
	}

	log.Info("WeChat callback",
		"alias", app.Alias,
		"client_id", pending.ClientID,
		"state", core.TruncateSecret(upstreamState),
	)

	upstreamCtx, cancel := context.WithTimeout(ctx, ct.upstreamTimeout)
	defer cancel()

	token, err := ct.provider.ExchangeCode(upstreamCtx, app, upstreamCode)
	if err != nil {
		logUpstreamError(log, "Code exchange failed", app.Alias, err)
		writeError(c, serverError("upstream code exchange failed"))
		return
	}

	if token.UnionID == "" {
		log.Error("No unionid in token response", "alias", app.Alias)
		writeError(c, serverError("application not federation-linked: bind both application kinds to the open platform"))
		return
	}

	profile, err := ct.provider.FetchUserInfo(upstreamCtx, token.AccessToken, token.OpenID)
	if err != nil {
		logUpstreamError(log, "Profile fetch failed", app.Alias, err)
		writeError(c, serverError("upstream profile fetch failed"))
		return
	}

	code := bridge.NewToken()
	rec := &core.IssuedIdentity{
		UnionID:       profile.UnionID,
		OpenID:        profile.OpenID,
		Nickname:      profile.Nickname,
		Avatar:        profile.HeadImgURL,
		OriginalState: pending.State,
		ClientID:      pending.ClientID,
		CreatedAt:     time.Now().Unix(),
	}
	if err := ct.bridge.StoreIdentity(ctx, code, rec); err != nil {
		log.Error("Failed to store identity", "error", err)
		writeError(c, serverError("failed to persist identity"))
		return
	}

	target, err := url.Parse(pending.RedirectURI)
	if err != nil {
		log.Error("Stored redirect URI unparseable", "error", err)
		writeError(c, serverError("stored redirect uri is invalid"))
		return
	}
	query := target.Query()
	query.Set("code", code)
	query.Set("state", pending.State)
	target.RawQuery = query.Encode()

	addRequestAttributes(ctx,
		attribute.String("oauth.client_id", pending.ClientID),
		attribute.String("wechat.app_alias", app.Alias),
	)
	log.Info("User authenticated",
		"alias", app.Alias,
		"client_id", pending.ClientID,
		"nickname", profile.Nickname,
		"code", core.TruncateSecret(code),
	)

	c.Redirect(http.StatusFound, target.String())
}

// Token exchanges an identity code for a bearer token. The token is the code
// itself; its effective lifetime is the identity cache TTL, which is why
// expires_in matches it rather than tracking a separate expiry.
func (ct *Controller) Token(c *gin.Context) {
	ctx := c.Request.Context()
	log := core.LoggerFromCtx(ctx)

	grantType := c.PostForm("grant_type")
	code := c.PostForm("code")
	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")

	// Brokers may send client credentials via HTTP Basic instead of the body.
	if clientID == "" && clientSecret == "" {
		if id, secret, ok := c.Request.BasicAuth(); ok {
			clientID, clientSecret = id, secret
		}
	}

	if grantType != "authorization_code" {
		writeError(c, unsupportedGrantType())
		return
	}
	if code == "" || clientID == "" || clientSecret == "" {
		writeError(c, invalidRequest("code, client_id, and client_secret are required"))
		return
	}

	if !ct.registry.ValidateClient(clientID, clientSecret) {
		writeError(c, invalidClient(""))
		return
	}

	identity, err := ct.bridge.LookupIdentity(ctx, code)
	if err != nil {
		writeError(c, invalidGrant("code invalid or expired"))
		return
	}

	// A code minted for one client must never be redeemable by another.
	if identity.ClientID != clientID {
		log.Warn("Cross-client code use blocked",
			"client_id", clientID,
			"code", core.TruncateSecret(code),
		)
		writeError(c, invalidGrant("client_id mismatch"))
		return
	}

	log.Info("Token issued", "client_id", clientID, "code", core.TruncateSecret(code))

	c.JSON(http.StatusOK, gin.H{
		"access_token": code,
		"token_type":   "Bearer",
		"expires_in":   accessTokenTTL,
	})
}

// UserInfo returns the OIDC profile for a bearer token. The token is
// accepted from the Authorization header or, for brokers that cannot set
// headers, the access_token query parameter. Lookups never consume the
// record, so validation can repeat within the TTL.
func (ct *Controller) UserInfo(c *gin.Context) {
	ctx := c.Request.Context()

	token := bearerToken(c)
	if token == "" {
		writeError(c, invalidToken("missing bearer token"))
		return
	}

	identity, err := ct.bridge.LookupIdentity(ctx, token)
	if err != nil {
		writeError(c, invalidToken("token invalid or expired"))
		return
	}

	core.LoggerFromCtx(ctx).Info("User info returned", "sub", identity.UnionID)

	c.JSON(http.StatusOK, gin.H{
		"sub":      identity.UnionID,
		"name":     identity.Nickname,
		"nickname": identity.Nickname,
		"picture":  identity.Avatar,
	})
}

// bearerToken extracts the access token from the Authorization header or
// the access_token query parameter.
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok && after != "" {
		return after
	}
	return c.Query("access_token")
}

// callbackURL derives the provider-facing callback URL for this request,
// honoring X-Forwarded-Proto and X-Forwarded-Prefix from a reverse proxy,
// or using the configured external URL when set.
func (ct *Controller) callbackURL(c *gin.Context) string {
	if ct.externalURL != "" {
		return ct.externalURL + ct.basePath + "/callback"
	}

	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
	}
	prefix := strings.TrimSuffix(c.GetHeader("X-Forwarded-Prefix"), "/")
	return scheme + "://" + c.Request.Host + prefix + ct.basePath + "/callback"
}

// logUpstreamError records provider failures server-side only; responses
// never carry upstream detail.
func logUpstreamError(log *slog.Logger, msg, alias string, err error) {
	var apiErr *wechat.APIError
	switch {
	case errors.As(err, &apiErr):
		log.Error(msg, "alias", alias, "errcode", apiErr.Code, "errmsg", apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		log.Error(msg, "alias", alias, "error", "upstream timeout")
	default:
		log.Error(msg, "alias", alias, "error", err)
	}
}
