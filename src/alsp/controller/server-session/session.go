// Package serversession orchestrates the lifecycle of the local language
// server: process supervision, port discovery, heartbeats, workspace
// tracking, and completion request multiplexing.
package serversession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acornide/assist-lsp/src/alsp/entity"
	"github.com/acornide/assist-lsp/src/alsp/factory"
	"github.com/acornide/assist-lsp/src/alsp/gateway/credentials"
	ideclient "github.com/acornide/assist-lsp/src/alsp/gateway/ide-client"
	"github.com/acornide/assist-lsp/src/alsp/internal/fs"
	"github.com/acornide/assist-lsp/src/alsp/internal/launcher"
	"github.com/acornide/assist-lsp/src/alsp/internal/portfile"
	"github.com/acornide/assist-lsp/src/alsp/internal/requestmux"
	"github.com/acornide/assist-lsp/src/alsp/internal/rpcclient"
	"github.com/acornide/assist-lsp/src/alsp/internal/serverinfofile"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_nameKey         = "server-session"
	_configKeyServer = "server"
	_configKeyIde    = "ide"

	_defaultHeartbeatInterval    = 5 * time.Second
	_defaultPortPollInterval     = 250 * time.Millisecond
	_defaultRestartDelay         = 2 * time.Second
	_defaultCredentialRetryDelay = 2 * time.Second
	_defaultFileWatchMaxDirCount = 50000
)

// CompletionCallback receives the outcome of a completion request. ok is
// false, with no items, when the request was canceled, superseded, or ended
// in a benign control outcome.
type CompletionCallback func(ok bool, completions []entity.Completion)

// Controller manages the single language server session owned by this
// process.
type Controller interface {
	// Start launches a new server generation, tearing down any previous one
	// first. With no credential available the launch is deferred and retried.
	Start(ctx context.Context) error
	// Shutdown tears down the subprocess and clears the generation; no
	// restart is scheduled.
	Shutdown(ctx context.Context) error
	// SetEnabled flips the user toggle; disabling cancels any pending
	// completion request.
	SetEnabled(ctx context.Context, enabled bool)
	// AddTrackedWorkspace tells the server to watch a workspace directory.
	// Already-tracked and hidden paths are skipped; failures are not recorded
	// so the next invocation retries.
	AddTrackedWorkspace(ctx context.Context, path string) error
	// RefreshContext notifies the server of current buffer contents.
	// Fire-and-forget; errors are surfaced as warnings.
	RefreshContext(ctx context.Context, doc entity.Document)
	// AcceptCompletion acknowledges that a completion was accepted.
	AcceptCompletion(ctx context.Context, completionID string)
	// RequestCompletion routes a completion request through the latest-wins
	// multiplexer. Returns a cancellation function; a no-op when the session
	// is disabled or no port is known yet.
	RequestCompletion(ctx context.Context, doc entity.Document, opts entity.EditorOptions, otherDocs []entity.Document, cb CompletionCallback) (cancel func())
	// HealthReport produces structured diagnostics lines for tooling.
	HealthReport(ctx context.Context) []entity.HealthItem
}

// Params are inbound parameters to initialize the controller.
type Params struct {
	fx.In

	Logger      *zap.SugaredLogger
	Config      config.Provider
	Stats       tally.Scope
	Lifecycle   fx.Lifecycle
	RPC         rpcclient.Client
	Launcher    launcher.Launcher
	Discoverer  portfile.Discoverer
	Mux         *requestmux.Mux
	Credentials credentials.Store
	IdeGateway  ideclient.Gateway
	InfoFile    serverinfofile.ServerInfoFile
	FS          fs.AlspFS
}

type serverConfig struct {
	ExecutablePath       string            `yaml:"executablePath"`
	APIServerURL         string            `yaml:"apiServerURL"`
	ManagerDirectory     string            `yaml:"managerDirectory"`
	FileWatchMaxDirCount int               `yaml:"fileWatchMaxDirCount"`
	FeatureFlags         []string          `yaml:"featureFlags"`
	Env                  map[string]string `yaml:"env"`
	HeartbeatInterval    string            `yaml:"heartbeatInterval"`
	PortPollInterval     string            `yaml:"portPollInterval"`
	RestartDelay         string            `yaml:"restartDelay"`
	CredentialRetryDelay string            `yaml:"credentialRetryDelay"`
	Quiet                bool              `yaml:"quiet"`
	Enabled              *bool             `yaml:"enabled"`
}

type ideConfig struct {
	Name             string `yaml:"name"`
	Version          string `yaml:"version"`
	ExtensionName    string `yaml:"extensionName"`
	ExtensionVersion string `yaml:"extensionVersion"`
}

// settings is serverConfig with durations parsed and defaults applied.
type settings struct {
	executablePath       string
	apiServerURL         string
	managerDirectory     string
	fileWatchMaxDirCount int
	featureFlags         []string
	env                  map[string]string
	heartbeatInterval    time.Duration
	portPollInterval     time.Duration
	restartDelay         time.Duration
	credentialRetryDelay time.Duration
	quiet                bool
	enabled              bool
}

type controller struct {
	cfg        settings
	ide        ideConfig
	logger     *zap.SugaredLogger
	stats      tally.Scope
	rpc        rpcclient.Client
	launcher   launcher.Launcher
	discoverer portfile.Discoverer
	mux        *requestmux.Mux
	creds      credentials.Store
	ideGateway ideclient.Gateway
	infoFile   serverinfofile.ServerInfoFile
	fs         fs.AlspFS

	// gens issues generation tokens; each value identifies one subprocess
	// lifetime and is never reused.
	gens *atomic.Int64

	mu           sync.Mutex
	session      *entity.Session
	handle       launcher.Handle
	genCancel    context.CancelFunc
	credRetry    *time.Timer
	restartTimer *time.Timer
	closed       bool
}

// New creates the server session controller and binds it to the application
// lifecycle.
func New(p Params) (Controller, error) {
	cfg, err := processConfig(p.Config)
	if err != nil {
		return nil, err
	}

	var ide ideConfig
	if err := p.Config.Get(_configKeyIde).Populate(&ide); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyIde, err)
	}

	c := &controller{
		cfg:        cfg,
		ide:        ide,
		logger:     p.Logger.With("component", _nameKey),
		stats:      p.Stats.SubScope("session"),
		rpc:        p.RPC,
		launcher:   p.Launcher,
		discoverer: p.Discoverer,
		mux:        p.Mux,
		creds:      p.Credentials,
		ideGateway: p.IdeGateway,
		infoFile:   p.InfoFile,
		fs:         p.FS,
		gens:       atomic.NewInt64(0),
		session: &entity.Session{
			UUID:              factory.UUID(),
			Enabled:           cfg.enabled,
			TrackedWorkspaces: make(map[string]struct{}),
		},
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: c.Start,
		OnStop:  c.Shutdown,
	})

	return c, nil
}

func processConfig(provider config.Provider) (settings, error) {
	var raw serverConfig
	if err := provider.Get(_configKeyServer).Populate(&raw); err != nil {
		return settings{}, fmt.Errorf("getting config field %q: %w", _configKeyServer, err)
	}

	if raw.ExecutablePath == "" {
		return settings{}, fmt.Errorf("missing field %q in config", "server.executablePath")
	}

	s := settings{
		executablePath:       raw.ExecutablePath,
		apiServerURL:         raw.APIServerURL,
		managerDirectory:     raw.ManagerDirectory,
		fileWatchMaxDirCount: raw.FileWatchMaxDirCount,
		featureFlags:         raw.FeatureFlags,
		env:                  raw.Env,
		quiet:                raw.Quiet,
		enabled:              true,
	}
	if raw.Enabled != nil {
		s.enabled = *raw.Enabled
	}
	if s.fileWatchMaxDirCount == 0 {
		s.fileWatchMaxDirCount = _defaultFileWatchMaxDirCount
	}

	var err, errs error
	if s.heartbeatInterval, err = parseDuration(raw.HeartbeatInterval, _defaultHeartbeatInterval); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing heartbeatInterval: %w", err))
	}
	if s.portPollInterval, err = parseDuration(raw.PortPollInterval, _defaultPortPollInterval); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing portPollInterval: %w", err))
	}
	if s.restartDelay, err = parseDuration(raw.RestartDelay, _defaultRestartDelay); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing restartDelay: %w", err))
	}
	if s.credentialRetryDelay, err = parseDuration(raw.CredentialRetryDelay, _defaultCredentialRetryDelay); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing credentialRetryDelay: %w", err))
	}
	if errs != nil {
		return settings{}, errs
	}

	return s, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// requestMetadata builds the metadata block attached to every RPC.
func (c *controller) requestMetadata(ctx context.Context, requestID int64) entity.RequestMetadata {
	c.mu.Lock()
	sessionID := c.session.UUID.String()
	c.mu.Unlock()

	return entity.RequestMetadata{
		APIKey:           c.creds.APIKey(ctx),
		IDEName:          c.ide.Name,
		IDEVersion:       c.ide.Version,
		ExtensionName:    c.ide.ExtensionName,
		ExtensionVersion: c.ide.ExtensionVersion,
		SessionID:        sessionID,
		RequestID:        requestID,
	}
}

// port returns the discovered port, or 0 while unknown.
func (c *controller) port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Port
}
