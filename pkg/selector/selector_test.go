package selector

import (
	"errors"
	"testing"

	"github.com/go-training/wechat-oauth-bridge/pkg/config"
	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

const wechatUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) MicroMessenger/8.0.40"
const desktopUA = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"

func newRegistry(t *testing.T, apps ...*core.WeChatApp) *config.Registry {
	t.Helper()
	registry, err := config.New(apps, []*core.Client{{ID: "c1", Secret: "s1"}})
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	return registry
}

func TestSelector_Select(t *testing.T) {
	registry := newRegistry(t,
		&core.WeChatApp{Alias: "mp", Kind: core.KindOfficialAccount, AppID: "oa1", AppSecret: "x"},
		&core.WeChatApp{Alias: "allow", Kind: core.KindOpenPlatform, AppID: "op1", AppSecret: "x"},
		&core.WeChatApp{Alias: "web2", Kind: core.KindOpenPlatform, AppID: "op2", AppSecret: "x"},
	)
	s := New(registry)

	tests := []struct {
		name          string
		state         string
		userAgent     string
		wantAlias     string
		wantResidual  string
		wantErr       error
	}{
		{
			name:         "override alias with colons in residual",
			state:        "allow:rest:with:colons",
			userAgent:    desktopUA,
			wantAlias:    "allow",
			wantResidual: "rest:with:colons",
		},
		{
			name:         "override ignores user agent",
			state:        "web2:xyz",
			userAgent:    wechatUA,
			wantAlias:    "web2",
			wantResidual: "xyz",
		},
		{
			name:         "override with empty residual",
			state:        "mp:",
			userAgent:    desktopUA,
			wantAlias:    "mp",
			wantResidual: "",
		},
		{
			name:      "unknown override alias",
			state:     "nope:xyz",
			userAgent: desktopUA,
			wantErr:   ErrAliasNotFound,
		},
		{
			name:         "wechat browser selects official account",
			state:        "xyz",
			userAgent:    wechatUA,
			wantAlias:    "mp",
			wantResidual: "xyz",
		},
		{
			name:         "wechat signature match is case-insensitive",
			state:        "xyz",
			userAgent:    "something micromessenger something",
			wantAlias:    "mp",
			wantResidual: "xyz",
		},
		{
			name:         "desktop browser selects first open platform app",
			state:        "xyz",
			userAgent:    desktopUA,
			wantAlias:    "allow",
			wantResidual: "xyz",
		},
		{
			name:         "empty state and empty user agent",
			state:        "",
			userAgent:    "",
			wantAlias:    "allow",
			wantResidual: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, residual, err := s.Select(tt.state, tt.userAgent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Select() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if app.Alias != tt.wantAlias {
				t.Errorf("Select() alias = %q, want %q", app.Alias, tt.wantAlias)
			}
			if residual != tt.wantResidual {
				t.Errorf("Select() residual = %q, want %q", residual, tt.wantResidual)
			}
		})
	}
}

func TestSelector_Select_KindNotConfigured(t *testing.T) {
	registry := newRegistry(t,
		&core.WeChatApp{Alias: "mp", Kind: core.KindOfficialAccount, AppID: "oa1", AppSecret: "x"},
	)
	s := New(registry)

	if _, _, err := s.Select("xyz", desktopUA); !errors.Is(err, ErrKindNotConfigured) {
		t.Errorf("Select() error = %v, want ErrKindNotConfigured", err)
	}

	// The official-account side is configured, so the in-app browser works.
	app, _, err := s.Select("xyz", wechatUA)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if app.Alias != "mp" {
		t.Errorf("Select() alias = %q, want mp", app.Alias)
	}
}
