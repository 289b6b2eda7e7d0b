package core

// AppKind identifies which of the two WeChat application kinds an app is.
// The provider only has these two; dispatch on them is a closed switch.
type AppKind string

const (
	// KindOfficialAccount is an in-WeChat-browser app (公众号). Authorization
	// happens inside the WeChat client itself.
	KindOfficialAccount AppKind = "official-account"
	// KindOpenPlatform is a website app (开放平台). Authorization happens via
	// a QR code scanned with the WeChat client.
	KindOpenPlatform AppKind = "open-platform"
)

// IsValid returns true if the AppKind is one of the two known kinds.
func (k AppKind) IsValid() bool {
	switch k {
	case KindOfficialAccount, KindOpenPlatform:
		return true
	default:
		return false
	}
}

// String returns the string representation of an AppKind.
func (k AppKind) String() string {
	return string(k)
}

// WeChatApp is a configured WeChat application. Loaded once at startup,
// immutable for the process lifetime.
type WeChatApp struct {
	Name      string  `json:"name" toml:"name"`
	Alias     string  `json:"alias" toml:"alias"`
	Kind      AppKind `json:"type" toml:"type"`
	AppID     string  `json:"appid" toml:"appid"`
	AppSecret string  `json:"-" toml:"appsecret"`
}

// Client is a registered relying-party client. Loaded once at startup,
// immutable for the process lifetime.
type Client struct {
	ID          string `json:"client_id" toml:"clientid"`
	Secret      string `json:"-" toml:"clientsecret"`
	CallbackURL string `json:"callback_url" toml:"callback_url"`
}
