package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
)

// Adapter provides a local directory implementation of livefs.FileSystem.
// All paths are '/'-separated and relative to the root; nothing outside the
// root is reachable.
type Adapter struct {
	root  string
	types *contenttype.Resolver
}

// New creates a new local filesystem adapter, creating root if needed.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, err
	}

	return &Adapter{root: absRoot, types: contenttype.Default()}, nil
}

// Root returns the absolute directory backing the adapter.
func (a *Adapter) Root() string {
	return a.root
}

// resolve maps a virtual path to a native one under the root.
func (a *Adapter) resolve(op, p string) (string, string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
	full := filepath.Join(a.root, filepath.FromSlash(rel))
	if !isPathUnderRoot(a.root, full) {
		return "", rel, &livefs.PathError{Op: op, Path: p, Err: livefs.ErrPermission}
	}
	return full, rel, nil
}

// wrapErr converts os errors into livefs sentinels.
func wrapErr(op, p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &livefs.PathError{Op: op, Path: p, Err: livefs.ErrNotExist}
	case errors.Is(err, fs.ErrPermission):
		return &livefs.PathError{Op: op, Path: p, Err: livefs.ErrPermission}
	case errors.Is(err, fs.ErrExist):
		return &livefs.PathError{Op: op, Path: p, Err: livefs.ErrExist}
	default:
		return &livefs.PathError{Op: op, Path: p, Err: err}
	}
}

// Write implements livefs.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...livefs.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, rel, err := a.resolve("write", p)
	if err != nil {
		return err
	}
	if rel == "" {
		return &livefs.PathError{Op: "write", Path: p, Err: livefs.ErrIsDir}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return wrapErr("write", rel, err)
	}

	// Replace atomically through a temp file in the same directory.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".livefs-*")
	if err != nil {
		return wrapErr("write", rel, err)
	}
	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return wrapErr("write", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return wrapErr("write", rel, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return wrapErr("write", rel, err)
	}

	if opts := livefs.ApplyOptions(options...); opts.ModTime != nil {
		if err := os.Chtimes(full, *opts.ModTime, *opts.ModTime); err != nil {
			return wrapErr("write", rel, err)
		}
	}

	return nil
}

// Read implements livefs.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, rel, err := a.resolve("read", p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, wrapErr("read", rel, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, &livefs.PathError{Op: "read", Path: rel, Err: livefs.ErrIsDir}
	}

	return f, nil
}

// ReadAll implements livefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements livefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, rel, err := a.resolve("delete", p)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		return wrapErr("delete", rel, err)
	}
	if info.IsDir() {
		return &livefs.PathError{Op: "delete", Path: rel, Err: livefs.ErrIsDir}
	}

	if err := os.Remove(full); err != nil {
		return wrapErr("delete", rel, err)
	}
	return nil
}

// FileExists implements livefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	info, err := a.Stat(ctx, p)
	if err != nil {
		if livefs.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir, nil
}

// DirExists implements livefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	full, rel, err := a.resolve("stat", p)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrapErr("stat", rel, err)
	}
	return info.IsDir(), nil
}

// Stat implements livefs.FileReader. File hashes are computed from the
// current content on every call.
func (a *Adapter) Stat(ctx context.Context, p string) (*livefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, rel, err := a.resolve("stat", p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, wrapErr("stat", rel, err)
	}

	fi := a.fileInfo(rel, info)
	if !info.IsDir() {
		hash, err := hashFile(full)
		if err != nil {
			return nil, wrapErr("stat", rel, err)
		}
		fi.Hash = hash
	}
	return &fi, nil
}

// ListContents implements livefs.FileReader. Entries are sorted by path;
// hashes are left empty, Stat a child to get one.
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]livefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	full, rel, err := a.resolve("listcontents", p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, wrapErr("listcontents", rel, err)
	}
	if !info.IsDir() {
		return nil, &livefs.PathError{Op: "listcontents", Path: rel, Err: livefs.ErrNotDir}
	}

	var files []livefs.FileInfo

	if recursive {
		err = filepath.WalkDir(full, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if walkPath == full {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			entryInfo, err := d.Info()
			if err != nil {
				return nil
			}
			relPath, err := filepath.Rel(a.root, walkPath)
			if err != nil {
				return err
			}
			files = append(files, a.fileInfo(filepath.ToSlash(relPath), entryInfo))
			return nil
		})
		if err != nil {
			return nil, wrapErr("listcontents", rel, err)
		}
	} else {
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, wrapErr("listcontents", rel, err)
		}

		files = make([]livefs.FileInfo, 0, len(entries))
		for _, entry := range entries {
			entryInfo, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, a.fileInfo(path.Join(rel, entry.Name()), entryInfo))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// CreateDir implements livefs.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, rel, err := a.resolve("createdir", p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(full, 0o755); err != nil {
		return wrapErr("createdir", rel, err)
	}
	return nil
}

// DeleteDir implements livefs.FileWriter. The root cannot be deleted.
func (a *Adapter) DeleteDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, rel, err := a.resolve("deletedir", p)
	if err != nil {
		return err
	}
	if rel == "" {
		return &livefs.PathError{Op: "deletedir", Path: p, Err: livefs.ErrPermission}
	}

	info, err := os.Stat(full)
	if err != nil {
		return wrapErr("deletedir", rel, err)
	}
	if !info.IsDir() {
		return &livefs.PathError{Op: "deletedir", Path: rel, Err: livefs.ErrNotDir}
	}

	if err := os.RemoveAll(full); err != nil {
		return wrapErr("deletedir", rel, err)
	}
	return nil
}

func (a *Adapter) fileInfo(rel string, info os.FileInfo) livefs.FileInfo {
	fi := livefs.FileInfo{
		Name:    info.Name(),
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if rel == "" {
		fi.Name = ""
	}
	if fi.IsDir {
		fi.Size = 0
	} else {
		fi.ContentType = a.types.MimeType(rel)
	}
	return fi
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hashFile(full string) (string, error) {
	f, err := os.Open(full)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return livefs.CalculateChecksum(f, livefs.ChecksumXXHash)
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements livefs.CanCopy for native file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcPath, srcRel, err := a.resolve("copy", src)
	if err != nil {
		return err
	}
	if _, _, err := a.resolve("copy", dst); err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return wrapErr("copy", srcRel, err)
	}
	defer srcFile.Close()

	return a.Write(ctx, dst, srcFile)
}

// Move implements livefs.CanMove for native renaming.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcPath, srcRel, err := a.resolve("move", src)
	if err != nil {
		return err
	}
	dstPath, dstRel, err := a.resolve("move", dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		return wrapErr("move", srcRel, err)
	}
	if _, err := os.Lstat(dstPath); err == nil {
		return &livefs.PathError{Op: "move", Path: dstRel, Err: livefs.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return wrapErr("move", dstRel, err)
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		return wrapErr("move", srcRel, err)
	}
	return nil
}

// Checksum implements livefs.CanChecksum for local files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm livefs.ChecksumAlgorithm) (string, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	checksum, err := livefs.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &livefs.PathError{Op: "checksum", Path: p, Err: err}
	}
	return checksum, nil
}

// Ensure Adapter implements interfaces
var (
	_ livefs.FileSystem  = (*Adapter)(nil)
	_ livefs.CanCopy     = (*Adapter)(nil)
	_ livefs.CanMove     = (*Adapter)(nil)
	_ livefs.CanChecksum = (*Adapter)(nil)
	_ livefs.CanWatch    = (*Adapter)(nil)
)
