package local

import "github.com/gobeaver/livefs"

// Register adds the "local" driver to reg.
func Register(reg *livefs.Registry) {
	reg.Register("local", func(cfg *livefs.Config) (livefs.FileSystem, error) {
		return New(cfg.LocalRoot)
	})
}
