package livefs

import (
	"errors"
	"fmt"

	"github.com/gobeaver/beaver-kit/config"
)

// Config selects and configures the filesystem the preview server mounts.
type Config struct {
	// Driver backing the project mount (local, memory)
	Driver string `env:"LIVEFS_DRIVER,default:local"`

	// Local driver root directory
	LocalRoot string `env:"LIVEFS_LOCAL_ROOT,default:."`

	// Virtual path the driver is mounted at
	ProjectMount string `env:"LIVEFS_PROJECT_MOUNT,default:/project"`

	// Virtual path of the in-memory scratch space; empty disables it
	ScratchMount string `env:"LIVEFS_SCRATCH_MOUNT,default:/app"`

	// Maximum bytes held by the scratch space (0 = unlimited)
	ScratchMaxSize int64 `env:"LIVEFS_SCRATCH_MAX_SIZE,default:0"`
}

// GetConfig returns config loaded from environment (BEAVER_ prefix)
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads config from environment using a custom prefix.
func LoadConfig(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: prefix}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Driver == "" {
		return errors.New("driver is required")
	}
	if c.ProjectMount == "" {
		return errors.New("project mount is required")
	}
	if c.ScratchMount != "" && normalizeMountPath(c.ScratchMount) == normalizeMountPath(c.ProjectMount) {
		return errors.New("scratch and project mounts must differ")
	}
	return nil
}

// Mount creates the configured drivers through reg and mounts them on m.
// The scratch space is always an in-memory filesystem built by scratch.
func (c *Config) Mount(reg *Registry, m *MountManager, scratch func(maxSize int64) FileSystem) error {
	project, err := reg.Create(c)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}
	if err := m.Mount(c.ProjectMount, project); err != nil {
		return err
	}
	if c.ScratchMount != "" && scratch != nil {
		if err := m.Mount(c.ScratchMount, scratch(c.ScratchMaxSize)); err != nil {
			return err
		}
	}
	return nil
}
