// Package credentials is the boundary to the external credential store.
// The on-disk format and the interactive authentication flow live outside
// this core; only the resulting API key is consumed here.
package credentials

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/config"
	"go.uber.org/fx"
)

const _configKeyCredentials = "credentials"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Store exposes the API key for request metadata. An empty key means no
// credential is available yet and the session defers its launch.
type Store interface {
	APIKey(ctx context.Context) string
	// SetAPIKey records a freshly obtained key (e.g. after the external auth
	// flow completes).
	SetAPIKey(ctx context.Context, key string)
}

// Params define values to be used by the store.
type Params struct {
	fx.In

	Config config.Provider
}

type storeConfig struct {
	APIKey string `yaml:"apiKey"`
}

type store struct {
	mu     sync.Mutex
	apiKey string
}

// New creates a Store seeded from configuration. Config values support env
// expansion, so the initial key typically arrives via ALSP_API_KEY.
func New(p Params) (Store, error) {
	var cfg storeConfig
	if err := p.Config.Get(_configKeyCredentials).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyCredentials, err)
	}

	return &store{apiKey: cfg.APIKey}, nil
}

func (s *store) APIKey(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

func (s *store) SetAPIKey(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}
