// Package config loads the two immutable registries the bridge runs on:
// configured WeChat applications and registered relying-party clients.
// Both are read once at startup from TOML files and never change.
package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-training/wechat-oauth-bridge/pkg/core"
)

var (
	// ErrNoApps is returned when the app config file declares no applications.
	ErrNoApps = errors.New("no wechat applications configured")
	// ErrNoClients is returned when the client config file declares no clients.
	ErrNoClients = errors.New("no clients configured")
)

type appsFile struct {
	Apps []*core.WeChatApp `toml:"apps"`
}

type clientsFile struct {
	Clients []*core.Client `toml:"clients"`
}

// Registry is the immutable lookup of configured WeChat applications and
// registered relying-party clients.
type Registry struct {
	apps    []*core.WeChatApp
	byAlias map[string]*core.WeChatApp
	clients map[string]*core.Client
}

// Load reads and validates both TOML files and builds the registry.
func Load(appsPath, clientsPath string) (*Registry, error) {
	appsData, err := os.ReadFile(appsPath)
	if err != nil {
		return nil, fmt.Errorf("read wechat app config: %w", err)
	}
	var af appsFile
	if err := toml.Unmarshal(appsData, &af); err != nil {
		return nil, fmt.Errorf("parse wechat app config: %w", err)
	}

	clientsData, err := os.ReadFile(clientsPath)
	if err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}
	var cf clientsFile
	if err := toml.Unmarshal(clientsData, &cf); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}

	return New(af.Apps, cf.Clients)
}

// New builds a registry from already-decoded entries, validating uniqueness
// and required fields.
func New(apps []*core.WeChatApp, clients []*core.Client) (*Registry, error) {
	if len(apps) == 0 {
		return nil, ErrNoApps
	}
	if len(clients) == 0 {
		return nil, ErrNoClients
	}

	r := &Registry{
		apps:    apps,
		byAlias: make(map[string]*core.WeChatApp, len(apps)),
		clients: make(map[string]*core.Client, len(clients)),
	}

	for _, app := range apps {
		if app.Alias == "" {
			return nil, fmt.Errorf("wechat app %q: alias is required", app.Name)
		}
		if app.AppID == "" || app.AppSecret == "" {
			return nil, fmt.Errorf("wechat app %q: appid and appsecret are required", app.Alias)
		}
		if !app.Kind.IsValid() {
			return nil, fmt.Errorf("wechat app %q: unknown type %q", app.Alias, app.Kind)
		}
		if _, exists := r.byAlias[app.Alias]; exists {
			return nil, fmt.Errorf("wechat app alias %q declared twice", app.Alias)
		}
		r.byAlias[app.Alias] = app
	}

	for _, client := range clients {
		if client.ID == "" || client.Secret == "" {
			return nil, fmt.Errorf("client %q: clientid and clientsecret are required", client.ID)
		}
		if _, exists := r.clients[client.ID]; exists {
			return nil, fmt.Errorf("client id %q declared twice", client.ID)
		}
		r.clients[client.ID] = client
	}

	return r, nil
}

// App returns the WeChat application with the given alias.
func (r *Registry) App(alias string) (*core.WeChatApp, bool) {
	app, ok := r.byAlias[alias]
	return app, ok
}

// FirstOfKind returns the first configured application of the given kind, in
// file declaration order.
func (r *Registry) FirstOfKind(kind core.AppKind) (*core.WeChatApp, bool) {
	for _, app := range r.apps {
		if app.Kind == kind {
			return app, true
		}
	}
	return nil, false
}

// Client returns the relying-party client with the given id.
func (r *Registry) Client(id string) (*core.Client, bool) {
	client, ok := r.clients[id]
	return client, ok
}

// ValidateClient checks a client id and secret pair.
func (r *Registry) ValidateClient(id, secret string) bool {
	client, ok := r.clients[id]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) == 1
}

// AppCount returns the number of configured WeChat applications.
func (r *Registry) AppCount() int {
	return len(r.apps)
}

// ClientCount returns the number of registered clients.
func (r *Registry) ClientCount() int {
	return len(r.clients)
}
