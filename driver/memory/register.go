package memory

import "github.com/gobeaver/livefs"

// Register adds the "memory" driver to reg.
func Register(reg *livefs.Registry) {
	reg.Register("memory", func(cfg *livefs.Config) (livefs.FileSystem, error) {
		return New(Config{MaxSize: cfg.ScratchMaxSize}), nil
	})
}
