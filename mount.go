package livefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrMountNotFound is returned when no mount point matches the path.
	// It wraps ErrNotExist so IsNotExist holds for unmounted paths.
	ErrMountNotFound = fmt.Errorf("no mount point found for path: %w", ErrNotExist)
	// ErrMountExists is returned when trying to mount at an existing path
	ErrMountExists = errors.New("mount point already exists")
	// ErrEmptyMountPath is returned when the mount path is empty
	ErrEmptyMountPath = errors.New("mount path cannot be empty")
	// ErrNilDriver is returned when trying to mount a nil driver
	ErrNilDriver = errors.New("driver cannot be nil")
)

// MountManager stitches several filesystems into one absolute '/'-separated
// namespace. The editor mounts the open project and the in-memory scratch
// space side by side and the live preview server reads through it.
type MountManager struct {
	mu     sync.RWMutex
	mounts map[string]FileSystem
	// sorted mount paths for longest-prefix matching
	sortedPaths []string
	created     time.Time
}

// NewMountManager creates a new mount manager instance.
func NewMountManager() *MountManager {
	return &MountManager{
		mounts:  make(map[string]FileSystem),
		created: time.Now(),
	}
}

// Mount attaches a filesystem at the specified virtual path.
//
//	mounts.Mount("/project", local.New(dir))
//	mounts.Mount("/app", memory.New())
func (m *MountManager) Mount(mountPath string, fs FileSystem) error {
	if fs == nil {
		return ErrNilDriver
	}

	mountPath = normalizeMountPath(mountPath)
	if mountPath == "" {
		return ErrEmptyMountPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; exists {
		return fmt.Errorf("%w: %s", ErrMountExists, mountPath)
	}

	m.mounts[mountPath] = fs
	m.updateSortedPaths()

	return nil
}

// Unmount removes the filesystem at the specified path.
func (m *MountManager) Unmount(mountPath string) error {
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; !exists {
		return fmt.Errorf("%w: %s", ErrMountNotFound, mountPath)
	}

	delete(m.mounts, mountPath)
	m.updateSortedPaths()

	return nil
}

// MountPaths returns all mount paths in sorted order (longest first).
func (m *MountManager) MountPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, len(m.sortedPaths))
	copy(result, m.sortedPaths)
	return result
}

// GetMount returns the filesystem mounted at the exact path.
func (m *MountManager) GetMount(mountPath string) (FileSystem, error) {
	mountPath = normalizeMountPath(mountPath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	fs, exists := m.mounts[mountPath]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMountNotFound, mountPath)
	}
	return fs, nil
}

// resolve finds the mount, its path and the mount-relative path for an
// absolute path. Longest prefix wins so nested mounts shadow their parents.
func (m *MountManager) resolve(op, absPath string) (FileSystem, string, string, error) {
	absPath = normalizeMountPath(absPath)
	if absPath == "" {
		return nil, "", "", &PathError{Op: op, Path: absPath, Err: ErrEmptyMountPath}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mountPath := range m.sortedPaths {
		if mountPath == "/" || absPath == mountPath || strings.HasPrefix(absPath, mountPath+"/") {
			rel := strings.TrimPrefix(strings.TrimPrefix(absPath, mountPath), "/")
			return m.mounts[mountPath], mountPath, rel, nil
		}
	}

	return nil, "", "", &PathError{Op: op, Path: absPath, Err: ErrMountNotFound}
}

// updateSortedPaths must be called with the lock held.
func (m *MountManager) updateSortedPaths() {
	paths := make([]string, 0, len(m.mounts))
	for p := range m.mounts {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return len(paths[i]) > len(paths[j])
	})
	m.sortedPaths = paths
}

// normalizeMountPath ensures the path starts with "/" and has no trailing slash.
func normalizeMountPath(p string) string {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ============================================================================
// FileSystem Interface Implementation
// ============================================================================

// Write writes content to the path, routing to the appropriate mount.
func (m *MountManager) Write(ctx context.Context, filePath string, content io.Reader, options ...Option) error {
	fs, _, rel, err := m.resolve("write", filePath)
	if err != nil {
		return err
	}
	return fs.Write(ctx, rel, content, options...)
}

// Read reads content from the path, routing to the appropriate mount.
func (m *MountManager) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	fs, _, rel, err := m.resolve("read", filePath)
	if err != nil {
		return nil, err
	}
	return fs.Read(ctx, rel)
}

// ReadAll reads all content from the path and returns it as a byte slice.
func (m *MountManager) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	fs, _, rel, err := m.resolve("read", filePath)
	if err != nil {
		return nil, err
	}
	return fs.ReadAll(ctx, rel)
}

// Delete deletes the file at the path, routing to the appropriate mount.
func (m *MountManager) Delete(ctx context.Context, filePath string) error {
	fs, _, rel, err := m.resolve("delete", filePath)
	if err != nil {
		return err
	}
	return fs.Delete(ctx, rel)
}

// FileExists checks if a file exists at the path.
func (m *MountManager) FileExists(ctx context.Context, filePath string) (bool, error) {
	fs, _, rel, err := m.resolve("stat", filePath)
	if err != nil {
		return false, nil
	}
	return fs.FileExists(ctx, rel)
}

// DirExists checks if a directory exists at the path. Ancestors of mount
// points count as directories.
func (m *MountManager) DirExists(ctx context.Context, dirPath string) (bool, error) {
	if m.isVirtualDir(dirPath) {
		return true, nil
	}
	fs, _, rel, err := m.resolve("stat", dirPath)
	if err != nil {
		return false, nil
	}
	return fs.DirExists(ctx, rel)
}

// Stat returns information about a node. Paths are reported in the
// manager's absolute namespace.
func (m *MountManager) Stat(ctx context.Context, filePath string) (*FileInfo, error) {
	fs, mountPath, rel, err := m.resolve("stat", filePath)
	if err != nil {
		if m.isVirtualDir(filePath) {
			return m.virtualDirInfo(filePath), nil
		}
		return nil, err
	}
	info, err := fs.Stat(ctx, rel)
	if err != nil {
		if m.isVirtualDir(filePath) {
			return m.virtualDirInfo(filePath), nil
		}
		return nil, err
	}
	info.Path = path.Join(mountPath, rel)
	if rel == "" && mountPath != "/" {
		info.Name = path.Base(mountPath)
	}
	return info, nil
}

// ListContents lists the children of dirPath. Mount points directly under
// dirPath show up as directories next to whatever the covering mount holds.
func (m *MountManager) ListContents(ctx context.Context, dirPath string, recursive bool) ([]FileInfo, error) {
	dirPath = normalizeMountPath(dirPath)

	fs, mountPath, rel, err := m.resolve("listcontents", dirPath)
	if err != nil {
		return m.listMountPointDirs(dirPath)
	}

	files, err := fs.ListContents(ctx, rel, recursive)
	if err != nil {
		if virtual, verr := m.listMountPointDirs(dirPath); verr == nil {
			return virtual, nil
		}
		return nil, err
	}

	for i := range files {
		files[i].Path = path.Join(mountPath, strings.TrimPrefix(files[i].Path, "/"))
	}

	if virtual, verr := m.listMountPointDirs(dirPath); verr == nil {
		files = mergeEntries(files, virtual)
	}
	return files, nil
}

// CreateDir creates a directory at the path.
func (m *MountManager) CreateDir(ctx context.Context, dirPath string) error {
	fs, _, rel, err := m.resolve("createdir", dirPath)
	if err != nil {
		return err
	}
	return fs.CreateDir(ctx, rel)
}

// DeleteDir deletes a directory at the path.
func (m *MountManager) DeleteDir(ctx context.Context, dirPath string) error {
	fs, _, rel, err := m.resolve("deletedir", dirPath)
	if err != nil {
		return err
	}
	return fs.DeleteDir(ctx, rel)
}

// ============================================================================
// Cross-Mount Operations
// ============================================================================

// Copy copies a file from source to destination, across mounts if needed.
func (m *MountManager) Copy(ctx context.Context, srcPath, dstPath string) error {
	srcFS, _, srcRel, err := m.resolve("copy", srcPath)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dstFS, _, dstRel, err := m.resolve("copy", dstPath)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	if srcFS == dstFS {
		if copier, ok := srcFS.(CanCopy); ok {
			return copier.Copy(ctx, srcRel, dstRel)
		}
	}

	srcInfo, err := srcFS.Stat(ctx, srcRel)
	if err != nil {
		return fmt.Errorf("get source info: %w", err)
	}
	data, err := srcFS.ReadAll(ctx, srcRel)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	var opts []Option
	if srcInfo.ContentType != "" {
		opts = append(opts, WithContentType(srcInfo.ContentType))
	}
	if len(srcInfo.Metadata) > 0 {
		opts = append(opts, WithMetadata(srcInfo.Metadata))
	}

	if err := dstFS.Write(ctx, dstRel, bytes.NewReader(data), opts...); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}

// Move renames a file, falling back to copy+delete across mounts.
func (m *MountManager) Move(ctx context.Context, srcPath, dstPath string) error {
	srcFS, _, srcRel, err := m.resolve("move", srcPath)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dstFS, _, dstRel, err := m.resolve("move", dstPath)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	if srcFS == dstFS {
		if mover, ok := srcFS.(CanMove); ok {
			return mover.Move(ctx, srcRel, dstRel)
		}
	}

	if err := m.Copy(ctx, srcPath, dstPath); err != nil {
		return err
	}
	if err := srcFS.Delete(ctx, srcRel); err != nil {
		return fmt.Errorf("delete source after move: %w", err)
	}
	return nil
}

// ============================================================================
// Helper Methods
// ============================================================================

// isVirtualDir reports whether p is "/" or a strict ancestor of a mount point.
func (m *MountManager) isVirtualDir(p string) bool {
	p = normalizeMountPath(p)
	if p == "/" {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for mountPath := range m.mounts {
		if strings.HasPrefix(mountPath, p+"/") {
			return true
		}
	}
	return false
}

func (m *MountManager) virtualDirInfo(p string) *FileInfo {
	p = normalizeMountPath(p)
	name := path.Base(p)
	if p == "/" {
		name = ""
	}
	return &FileInfo{Name: name, Path: p, IsDir: true, ModTime: m.created}
}

// listMountPointDirs returns a directory entry for every mount path segment
// directly under prefix.
func (m *MountManager) listMountPointDirs(prefix string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	base := prefix
	if base != "/" {
		base += "/"
	}

	seen := make(map[string]bool)
	var files []FileInfo
	for mountPath := range m.mounts {
		if mountPath == "/" || !strings.HasPrefix(mountPath, base) {
			continue
		}
		name := strings.SplitN(strings.TrimPrefix(mountPath, base), "/", 2)[0]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		files = append(files, FileInfo{
			Name:    name,
			Path:    path.Join(prefix, name),
			IsDir:   true,
			ModTime: m.created,
		})
	}

	if len(files) == 0 {
		return nil, &PathError{Op: "listcontents", Path: prefix, Err: ErrMountNotFound}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// mergeEntries adds the virtual entries whose names are not already listed.
func mergeEntries(files, virtual []FileInfo) []FileInfo {
	names := make(map[string]bool, len(files))
	for _, f := range files {
		names[f.Name] = true
	}
	for _, v := range virtual {
		if !names[v.Name] {
			files = append(files, v)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files
}

// ============================================================================
// Optional Interface Implementations
// ============================================================================

// Checksum implements CanChecksum, hashing the stream when the mount cannot.
func (m *MountManager) Checksum(ctx context.Context, filePath string, algorithm ChecksumAlgorithm) (string, error) {
	fs, _, rel, err := m.resolve("checksum", filePath)
	if err != nil {
		return "", err
	}

	if checksummer, ok := fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, rel, algorithm)
	}

	rc, err := fs.Read(ctx, rel)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return CalculateChecksum(rc, algorithm)
}

// Watch implements CanWatch by delegating to the mount that owns pattern.
// Patterns that cannot be pinned to one mount ("**/*.json") watch every
// mount that supports it.
func (m *MountManager) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if strings.HasPrefix(pattern, "/") && !strings.Contains(pattern, "**") {
		fs, _, rel, err := m.resolve("watch", pattern)
		if err != nil {
			return nil, err
		}
		if watcher, ok := fs.(CanWatch); ok {
			return watcher.Watch(ctx, rel)
		}
		return NeverChangeToken{}, nil
	}
	return m.watchAllMounts(ctx, strings.TrimPrefix(pattern, "/"))
}

func (m *MountManager) watchAllMounts(ctx context.Context, pattern string) (ChangeToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tokens []ChangeToken
	for _, fs := range m.mounts {
		if watcher, ok := fs.(CanWatch); ok {
			token, err := watcher.Watch(ctx, pattern)
			if err != nil {
				continue
			}
			tokens = append(tokens, token)
		}
	}

	if len(tokens) == 0 {
		return NeverChangeToken{}, nil
	}
	return NewCompositeChangeToken(tokens...), nil
}

// Ensure MountManager implements FileSystem and optional interfaces
var (
	_ FileSystem  = (*MountManager)(nil)
	_ CanCopy     = (*MountManager)(nil)
	_ CanMove     = (*MountManager)(nil)
	_ CanChecksum = (*MountManager)(nil)
	_ CanWatch    = (*MountManager)(nil)
)
