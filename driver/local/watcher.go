package local

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobeaver/livefs"
	"github.com/gobwas/glob"
)

// Watch implements livefs.CanWatch using fsnotify. The pattern is a glob
// over root-relative '/'-separated paths ("**/*.css", ".phcode.json").
// The token fires once, on the first matching create, write, remove or
// rename, and the underlying watcher is released.
func (a *Adapter) Watch(ctx context.Context, pattern string) (livefs.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	pattern = strings.TrimPrefix(pattern, "/")
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &livefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	base, recursive := watchBase(pattern)
	watchDir, _, err := a.resolve("watch", base)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &livefs.PathError{Op: "watch", Path: pattern, Err: err}
	}
	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, wrapErr("watch", pattern, err)
	}
	if recursive {
		filepath.WalkDir(watchDir, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != watchDir {
				watcher.Add(p)
			}
			return nil
		})
	}

	token := livefs.NewCallbackChangeToken()
	go a.watchLoop(ctx, watcher, g, recursive, token)

	return token, nil
}

func (a *Adapter) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, g glob.Glob, recursive bool, token *livefs.CallbackChangeToken) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			rel, err := filepath.Rel(a.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			// New directories under a recursive watch are followed as they appear.
			if recursive && event.Has(fsnotify.Create) {
				if ok, _ := a.DirExists(ctx, rel); ok {
					watcher.Add(event.Name)
				}
			}

			if g.Match(rel) {
				token.SignalChange()
				return
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// watchBase returns the deepest directory of pattern free of glob meta
// characters, and whether matches may lie in its subdirectories.
func watchBase(pattern string) (string, bool) {
	idx := strings.IndexAny(pattern, "*?[{")
	if idx < 0 {
		return path.Dir(pattern), false
	}

	dir := ""
	if slash := strings.LastIndex(pattern[:idx], "/"); slash >= 0 {
		dir = pattern[:slash]
	}
	rest := pattern[len(dir):]
	recursive := strings.Contains(rest, "**") || strings.Count(strings.TrimPrefix(rest, "/"), "/") > 0
	return dir, recursive
}
