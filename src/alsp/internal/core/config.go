package core

import (
	"fmt"
	"os"
	"path/filepath"

	uberconfig "go.uber.org/config"
	"go.uber.org/fx"
)

// ConfigModule provides the configuration provider.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

const (
	_configDirEnv   = "ALSP_CONFIG_DIR"
	_configDir      = "config"
	_configBase     = "base.yaml"
	_configOverride = "local.yaml"
)

// NewConfig loads YAML configuration from the config directory.
// base.yaml is required; local.yaml, when present, is merged on top of it.
// Values support environment variable expansion.
func NewConfig() (uberconfig.Provider, error) {
	configDir := getConfigDir()

	basePath := filepath.Join(configDir, _configBase)
	if _, err := os.Stat(basePath); err != nil {
		return nil, fmt.Errorf("missing base configuration %q: %w", basePath, err)
	}

	options := []uberconfig.YAMLOption{
		uberconfig.File(basePath),
	}

	overridePath := filepath.Join(configDir, _configOverride)
	if _, err := os.Stat(overridePath); err == nil {
		options = append(options, uberconfig.File(overridePath))
	}
	options = append(options, uberconfig.Expand(os.LookupEnv))

	provider, err := uberconfig.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return provider, nil
}

// getConfigDir returns the path to the configuration directory.
func getConfigDir() string {
	if configDir := os.Getenv(_configDirEnv); configDir != "" {
		return configDir
	}
	return _configDir
}
