package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/yndnr/tokmesh-client/internal/infra/confloader"
)

// Load reads the configuration at path over the defaults and the
// environment, then verifies it. A missing file is not an error when
// path is the default path.
func Load(path string, overrides map[string]any) (*ClientConfig, *confloader.Loader, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, nil, fmt.Errorf("config file %s: %w", path, err)
		}
		path = ""
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)

	cfg := Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// Reload re-reads every source through loader into a fresh default
// configuration.
func Reload(loader *confloader.Loader) (*ClientConfig, error) {
	cfg := Default()
	if err := loader.Reload(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
