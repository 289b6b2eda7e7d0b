// Package wechat implements the outbound client for the WeChat OAuth dialect.
// WeChat is not RFC 6749 on the wire: credentials travel as appid/secret
// query parameters, the token endpoint is a GET, errors come back as an
// errcode envelope with HTTP 200, and authorize URLs end in a
// #wechat_redirect fragment.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

const (
	// DefaultOpenBase hosts the authorize pages (open.weixin.qq.com).
	DefaultOpenBase = "https://open.weixin.qq.com"
	// DefaultAPIBase hosts the sns API (api.weixin.qq.com).
	DefaultAPIBase = "https://api.weixin.qq.com"

	officialAuthorizePath = "/connect/oauth2/authorize"
	qrConnectPath         = "/connect/qrconnect"
	accessTokenPath       = "/sns/oauth2/access_token"
	userInfoPath          = "/sns/userinfo"

	// DefaultScope is the official-account scope that grants profile access.
	DefaultScope = "snsapi_userinfo"
	// qrScope is the only scope the QR flow accepts.
	qrScope = "snsapi_login"

	// browserSignature appears in the user agent of WeChat's in-app browser.
	browserSignature = "micromessenger"

	requestTimeout = 10 * time.Second
)

// IsWeChatBrowser reports whether the user agent belongs to the WeChat
// in-app browser.
func IsWeChatBrowser(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), browserSignature)
}

// TokenResponse is the sns/oauth2/access_token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid"`
}

// Profile is the sns/userinfo response.
type Profile struct {
	OpenID     string `json:"openid"`
	Nickname   string `json:"nickname"`
	Sex        int    `json:"sex"`
	Province   string `json:"province"`
	City       string `json:"city"`
	Country    string `json:"country"`
	HeadImgURL string `json:"headimgurl"`
	UnionID    string `json:"unionid"`
}

// APIError is a non-zero errcode envelope reported by the WeChat API.
type APIError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error: %d - %s", e.Code, e.Message)
}

// Client performs the three upstream calls the bridge needs: building
// authorize URLs, exchanging a code for a token, and fetching a profile.
type Client struct {
	openBase   string
	apiBase    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURLs overrides the authorize-page and API hosts, mainly for tests.
func WithBaseURLs(openBase, apiBase string) Option {
	return func(c *Client) {
		c.openBase = openBase
		c.apiBase = apiBase
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a WeChat API client with a pooled transport and request
// timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		openBase: DefaultOpenBase,
		apiBase:  DefaultAPIBase,
		httpClient: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeURL builds the provider authorize URL for the given application.
// Official-account apps use the in-browser consent page; open-platform apps
// use the QR login page, which only accepts the snsapi_login scope. The state
// must be the opaque bridging token, never relying-party content.
func (c *Client) AuthorizeURL(app *core.WeChatApp, callbackURL, state, scope string) (string, error) {
	var path string
	values := url.Values{}
	values.Set("appid", app.AppID)
	values.Set("redirect_uri", callbackURL)
	values.Set("response_type", "code")
	values.Set("state", state)

	switch app.Kind {
	case core.KindOfficialAccount:
		path = officialAuthorizePath
		if scope == "" {
			scope = DefaultScope
		}
		values.Set("scope", scope)
	case core.KindOpenPlatform:
		path = qrConnectPath
		values.Set("scope", qrScope)
	default:
		return "", fmt.Errorf("unknown wechat app kind: %q", app.Kind)
	}

	return c.openBase + path + "?" + values.Encode() + "#wechat_redirect", nil
}

// ExchangeCode trades an upstream authorization code for an access token,
// openid, and (when the app is bound to the open platform) unionid.
func (c *Client) ExchangeCode(ctx context.Context, app *core.WeChatApp, code string) (*TokenResponse, error) {
	values := url.Values{}
	values.Set("appid", app.AppID)
	values.Set("secret", app.AppSecret)
	values.Set("code", code)
	values.Set("grant_type", "authorization_code")

	var token TokenResponse
	if err := c.getJSON(ctx, c.apiBase+accessTokenPath+"?"+values.Encode(), &token); err != nil {
		return nil, fmt.Errorf("exchange wechat code: %w", err)
	}
	return &token, nil
}

// FetchUserInfo loads the user profile for an access token and openid.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken, openID string) (*Profile, error) {
	values := url.Values{}
	values.Set("access_token", accessToken)
	values.Set("openid", openID)
	values.Set("lang", "zh_CN")

	var profile Profile
	if err := c.getJSON(ctx, c.apiBase+userInfoPath+"?"+values.Encode(), &profile); err != nil {
		return nil, fmt.Errorf("fetch wechat user info: %w", err)
	}
	return &profile, nil
}

// getJSON performs a GET and decodes the body into out, surfacing the
// errcode envelope as an APIError. WeChat reports failures with HTTP 200,
// so the envelope check cannot rely on the status code alone.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return &apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
