package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

const validApps = `
[[apps]]
name = "Main Site"
alias = "web"
type = "open-platform"
appid = "wx_op_appid"
appsecret = "op_secret"

[[apps]]
name = "Service Account"
alias = "mp"
type = "official-account"
appid = "wx_oa_appid"
appsecret = "oa_secret"
`

const validClients = `
[[clients]]
clientid = "c1"
clientsecret = "s1"
callback_url = "https://rp.example.com/cb"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	appsPath := writeFile(t, "apps.toml", validApps)
	clientsPath := writeFile(t, "clients.toml", validClients)

	registry, err := Load(appsPath, clientsPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if registry.AppCount() != 2 {
		t.Errorf("AppCount() = %d, want 2", registry.AppCount())
	}
	if registry.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", registry.ClientCount())
	}

	app, ok := registry.App("mp")
	if !ok {
		t.Fatal("App(mp) not found")
	}
	if app.Kind != core.KindOfficialAccount {
		t.Errorf("App(mp).Kind = %v, want %v", app.Kind, core.KindOfficialAccount)
	}
	if app.AppID != "wx_oa_appid" {
		t.Errorf("App(mp).AppID = %q, want wx_oa_appid", app.AppID)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		apps    string
		clients string
	}{
		{
			name:    "unknown app kind",
			apps:    "[[apps]]\nalias = \"x\"\ntype = \"mini-program\"\nappid = \"a\"\nappsecret = \"s\"\n",
			clients: validClients,
		},
		{
			name:    "duplicate alias",
			apps:    validApps + "\n[[apps]]\nalias = \"web\"\ntype = \"open-platform\"\nappid = \"a\"\nappsecret = \"s\"\n",
			clients: validClients,
		},
		{
			name:    "missing appsecret",
			apps:    "[[apps]]\nalias = \"x\"\ntype = \"open-platform\"\nappid = \"a\"\n",
			clients: validClients,
		},
		{
			name:    "duplicate client id",
			apps:    validApps,
			clients: validClients + "\n[[clients]]\nclientid = \"c1\"\nclientsecret = \"other\"\n",
		},
		{
			name:    "malformed toml",
			apps:    "[[apps\n",
			clients: validClients,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appsPath := writeFile(t, "apps.toml", tt.apps)
			clientsPath := writeFile(t, "clients.toml", tt.clients)
			if _, err := Load(appsPath, clientsPath); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestLoad_EmptyFiles(t *testing.T) {
	appsPath := writeFile(t, "apps.toml", "")
	clientsPath := writeFile(t, "clients.toml", validClients)
	if _, err := Load(appsPath, clientsPath); !errors.Is(err, ErrNoApps) {
		t.Errorf("Load() error = %v, want ErrNoApps", err)
	}

	appsPath = writeFile(t, "apps2.toml", validApps)
	clientsPath = writeFile(t, "clients2.toml", "")
	if _, err := Load(appsPath, clientsPath); !errors.Is(err, ErrNoClients) {
		t.Errorf("Load() error = %v, want ErrNoClients", err)
	}
}

func TestRegistry_FirstOfKind(t *testing.T) {
	registry, err := New(
		[]*core.WeChatApp{
			{Alias: "op1", Kind: core.KindOpenPlatform, AppID: "a1", AppSecret: "s1"},
			{Alias: "op2", Kind: core.KindOpenPlatform, AppID: "a2", AppSecret: "s2"},
		},
		[]*core.Client{{ID: "c1", Secret: "s1"}},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	app, ok := registry.FirstOfKind(core.KindOpenPlatform)
	if !ok {
		t.Fatal("FirstOfKind(open-platform) not found")
	}
	if app.Alias != "op1" {
		t.Errorf("FirstOfKind returned %q, want op1 (declaration order)", app.Alias)
	}

	if _, ok := registry.FirstOfKind(core.KindOfficialAccount); ok {
		t.Error("FirstOfKind(official-account) = found, want miss")
	}
}

func TestRegistry_ValidateClient(t *testing.T) {
	registry, err := New(
		[]*core.WeChatApp{{Alias: "op", Kind: core.KindOpenPlatform, AppID: "a", AppSecret: "s"}},
		[]*core.Client{{ID: "c1", Secret: "s1"}},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name   string
		id     string
		secret string
		want   bool
	}{
		{name: "valid pair", id: "c1", secret: "s1", want: true},
		{name: "wrong secret", id: "c1", secret: "nope", want: false},
		{name: "unknown client", id: "c2", secret: "s1", want: false},
		{name: "empty secret", id: "c1", secret: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.ValidateClient(tt.id, tt.secret); got != tt.want {
				t.Errorf("ValidateClient(%q, %q) = %v, want %v", tt.id, tt.secret, got, tt.want)
			}
		})
	}
}
