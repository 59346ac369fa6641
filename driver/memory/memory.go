package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
	"github.com/gobwas/glob"
)

// memoryFile represents a file stored in memory
type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
	hash        string
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime time.Time
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	pattern glob.Glob
	token   *livefs.CallbackChangeToken
}

// Adapter provides an in-memory implementation of livefs.FileSystem.
// It stands in for the browser-side store that holds unsaved and scratch
// documents.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size
	types   *contenttype.Resolver
	now     func() time.Time

	// Watch support
	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
	// ContentTypes resolves stored content types (default: contenttype.Default)
	ContentTypes *contenttype.Resolver
	// Clock overrides time.Now for modification times
	Clock func() time.Time
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.ContentTypes == nil {
		c.ContentTypes = contenttype.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: c.MaxSize,
		types:   c.ContentTypes,
		now:     c.Clock,
	}
	a.dirs[""] = &memoryDir{modTime: a.now()}

	return a
}

// Write implements livefs.FileWriter. Existing files are replaced.
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...livefs.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if p == "" || !isValidPath(p) {
		return &livefs.PathError{Op: "write", Path: p, Err: livefs.ErrInvalidName}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &livefs.PathError{Op: "write", Path: p, Err: err}
	}

	opts := livefs.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return &livefs.PathError{Op: "write", Path: p, Err: livefs.ErrIsDir}
	}
	if parent := a.fileAncestor(p); parent != "" {
		return &livefs.PathError{Op: "write", Path: parent, Err: livefs.ErrNotDir}
	}

	newSize := a.size + int64(len(data))
	if existing, exists := a.files[p]; exists {
		newSize -= int64(len(existing.content))
	}
	if a.maxSize > 0 && newSize > a.maxSize {
		return &livefs.PathError{Op: "write", Path: p, Err: livefs.ErrNoSpace}
	}

	a.ensureParentDirs(p)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = a.types.MimeType(p)
	}
	modTime := a.now()
	if opts.ModTime != nil {
		modTime = *opts.ModTime
	}

	a.files[p] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		modTime:     modTime,
		hash:        livefs.ContentHash(data),
	}
	a.size = newSize

	go a.notifyWatchers(p)

	return nil
}

// Read implements livefs.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := a.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadAll implements livefs.FileReader. The returned slice is a copy.
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[p]
	if !exists {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &livefs.PathError{Op: "read", Path: p, Err: livefs.ErrIsDir}
		}
		return nil, &livefs.PathError{Op: "read", Path: p, Err: livefs.ErrNotExist}
	}

	return bytes.Clone(file.content), nil
}

// Delete implements livefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.Lock()
	defer a.mu.Unlock()

	file, exists := a.files[p]
	if !exists {
		return &livefs.PathError{Op: "delete", Path: p, Err: livefs.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, p)

	go a.notifyWatchers(p)

	return nil
}

// FileExists implements livefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.files[p]
	return exists, nil
}

// DirExists implements livefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.dirs[p]
	return exists, nil
}

// Stat implements livefs.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*livefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, exists := a.files[p]; exists {
		info := fileInfo(p, file)
		return &info, nil
	}
	if dir, exists := a.dirs[p]; exists {
		info := dirInfo(p, dir)
		return &info, nil
	}

	return nil, &livefs.PathError{Op: "stat", Path: p, Err: livefs.ErrNotExist}
}

// ListContents implements livefs.FileReader. Entries are sorted by name.
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]livefs.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return nil, &livefs.PathError{Op: "listcontents", Path: p, Err: livefs.ErrNotDir}
		}
		return nil, &livefs.PathError{Op: "listcontents", Path: p, Err: livefs.ErrNotExist}
	}

	var entries []livefs.FileInfo
	for filePath, file := range a.files {
		if isChild(p, filePath, recursive) {
			entries = append(entries, fileInfo(filePath, file))
		}
	}
	for dirPath, dir := range a.dirs {
		if dirPath != p && isChild(p, dirPath, recursive) {
			entries = append(entries, dirInfo(dirPath, dir))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name == entries[j].Name {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

// CreateDir implements livefs.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return &livefs.PathError{Op: "createdir", Path: p, Err: livefs.ErrInvalidName}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[p]; exists {
		return &livefs.PathError{Op: "createdir", Path: p, Err: livefs.ErrExist}
	}
	if parent := a.fileAncestor(p); parent != "" {
		return &livefs.PathError{Op: "createdir", Path: parent, Err: livefs.ErrNotDir}
	}

	a.ensureParentDirs(p)
	if _, exists := a.dirs[p]; !exists {
		a.dirs[p] = &memoryDir{modTime: a.now()}
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

	p = normalizePath(p)
	if p == "" {
		return &livefs.PathError{Op: "deletedir", Path: "/", Err: livefs.ErrPermission}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return &livefs.PathError{Op: "deletedir", Path: p, Err: livefs.ErrNotDir}
		}
		return &livefs.PathError{Op: "deletedir", Path: p, Err: livefs.ErrNotExist}
	}

	prefix := p + "/"
	var deleted []string
	for filePath, file := range a.files {
		if strings.HasPrefix(filePath, prefix) {
			a.size -= int64(len(file.content))
			deleted = append(deleted, filePath)
			delete(a.files, filePath)
		}
	}
	for dirPath := range a.dirs {
		if dirPath == p || strings.HasPrefix(dirPath, prefix) {
			delete(a.dirs, dirPath)
		}
	}

	if len(deleted) > 0 {
		go func() {
			for _, fp := range deleted {
				a.notifyWatchers(fp)
			}
		}()
	}

	return nil
}

// Clear removes all files and directories from the memory filesystem
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = map[string]*memoryDir{"": {modTime: a.now()}}
	a.size = 0
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureParentDirs must be called with the lock held.
func (a *Adapter) ensureParentDirs(p string) {
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{modTime: a.now()}
		}
	}
}

// fileAncestor returns the first ancestor of p that is a file, or "".
// Must be called with the lock held.
func (a *Adapter) fileAncestor(p string) string {
	for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		if _, isFile := a.files[dir]; isFile {
			return dir
		}
	}
	return ""
}

func fileInfo(p string, f *memoryFile) livefs.FileInfo {
	return livefs.FileInfo{
		Name:        path.Base(p),
		Path:        p,
		Size:        int64(len(f.content)),
		ModTime:     f.modTime,
		ContentType: f.contentType,
		Hash:        f.hash,
		Metadata:    f.metadata,
	}
}

func dirInfo(p string, d *memoryDir) livefs.FileInfo {
	name := path.Base(p)
	if p == "" {
		name = ""
	}
	return livefs.FileInfo{
		Name:    name,
		Path:    p,
		ModTime: d.modTime,
		IsDir:   true,
	}
}

// isChild reports whether child lies under dir; only immediate children
// count unless recursive is set.
func isChild(dir, child string, recursive bool) bool {
	rel := child
	if dir != "" {
		if !strings.HasPrefix(child, dir+"/") {
			return false
		}
		rel = strings.TrimPrefix(child, dir+"/")
	}
	if rel == "" {
		return false
	}
	return recursive || !strings.Contains(rel, "/")
}

// normalizePath maps "/a/b/", "a/b" and "./a/b" to "a/b"; the root is "".
func normalizePath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// isValidPath rejects paths that try to climb out of the root.
func isValidPath(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements livefs.CanCopy for in-memory file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	if dst == "" {
		return &livefs.PathError{Op: "copy", Path: dst, Err: livefs.ErrInvalidName}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[src]
	if !exists {
		return &livefs.PathError{Op: "copy", Path: src, Err: livefs.ErrNotExist}
	}
	if _, isDir := a.dirs[dst]; isDir {
		return &livefs.PathError{Op: "copy", Path: dst, Err: livefs.ErrIsDir}
	}

	grow := int64(len(srcFile.content))
	if old, exists := a.files[dst]; exists {
		grow -= int64(len(old.content))
	}
	if a.maxSize > 0 && a.size+grow > a.maxSize {
		return &livefs.PathError{Op: "copy", Path: dst, Err: livefs.ErrNoSpace}
	}

	a.ensureParentDirs(dst)

	metadata := make(map[string]string, len(srcFile.metadata))
	for k, v := range srcFile.metadata {
		metadata[k] = v
	}

	a.files[dst] = &memoryFile{
		content:     bytes.Clone(srcFile.content),
		contentType: srcFile.contentType,
		metadata:    metadata,
		modTime:     a.now(),
		hash:        srcFile.hash,
	}
	a.size += grow

	go a.notifyWatchers(dst)

	return nil
}

// Move implements livefs.CanMove. Directories are renamed with everything
// under them.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)
	if src == "" || dst == "" || !isValidPath(dst) {
		return &livefs.PathError{Op: "move", Path: src, Err: livefs.ErrInvalidName}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.files[dst]; taken {
		return &livefs.PathError{Op: "move", Path: dst, Err: livefs.ErrExist}
	}
	if _, taken := a.dirs[dst]; taken {
		return &livefs.PathError{Op: "move", Path: dst, Err: livefs.ErrExist}
	}

	var changed []string
	if srcFile, exists := a.files[src]; exists {
		a.ensureParentDirs(dst)
		a.files[dst] = srcFile
		srcFile.modTime = a.now()
		delete(a.files, src)
		changed = append(changed, src, dst)
	} else if _, exists := a.dirs[src]; exists {
		if strings.HasPrefix(dst, src+"/") {
			return &livefs.PathError{Op: "move", Path: dst, Err: livefs.ErrInvalidName}
		}
		a.ensureParentDirs(dst)
		prefix := src + "/"
		for filePath, file := range a.files {
			if strings.HasPrefix(filePath, prefix) {
				moved := dst + "/" + strings.TrimPrefix(filePath, prefix)
				a.files[moved] = file
				delete(a.files, filePath)
				changed = append(changed, filePath, moved)
			}
		}
		for dirPath, dir := range a.dirs {
			if dirPath == src || strings.HasPrefix(dirPath, prefix) {
				a.dirs[dst+strings.TrimPrefix(dirPath, src)] = dir
				delete(a.dirs, dirPath)
			}
		}
	} else {
		return &livefs.PathError{Op: "move", Path: src, Err: livefs.ErrNotExist}
	}

	go func() {
		for _, p := range changed {
			a.notifyWatchers(p)
		}
	}()

	return nil
}

// Checksum implements livefs.CanChecksum for in-memory files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm livefs.ChecksumAlgorithm) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[p]
	if !exists {
		return "", &livefs.PathError{Op: "checksum", Path: p, Err: livefs.ErrNotExist}
	}

	checksum, err := livefs.CalculateChecksum(bytes.NewReader(file.content), algorithm)
	if err != nil {
		return "", &livefs.PathError{Op: "checksum", Path: p, Err: err}
	}

	return checksum, nil
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements livefs.CanWatch. Patterns are matched against
// root-relative paths with '/' as separator, so "*.json" only matches at the
// top level while "**/*.json" matches at any depth.
func (a *Adapter) Watch(ctx context.Context, pattern string) (livefs.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	g, err := glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
	if err != nil {
		return nil, &livefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := livefs.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{pattern: g, token: token})
	a.watchMu.Unlock()

	// A token fires once; its entry goes away when it fires or ctx ends.
	fired := make(chan struct{})
	var once sync.Once
	unregister := token.RegisterChangeCallback(func() { once.Do(func() { close(fired) }) })
	go func() {
		select {
		case <-ctx.Done():
			a.removeWatch(token)
		case <-fired:
		}
		unregister()
	}()

	return token, nil
}

// notifyWatchers signals and drops all watchers whose pattern matches p.
func (a *Adapter) notifyWatchers(p string) {
	var hit []*livefs.CallbackChangeToken

	a.watchMu.Lock()
	kept := a.watches[:0]
	for _, entry := range a.watches {
		if entry.pattern.Match(p) {
			hit = append(hit, entry.token)
			continue
		}
		kept = append(kept, entry)
	}
	clear(a.watches[len(kept):])
	a.watches = kept
	a.watchMu.Unlock()

	for _, token := range hit {
		token.SignalChange()
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *livefs.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// Ensure Adapter implements interfaces
var (
	_ livefs.FileSystem  = (*Adapter)(nil)
	_ livefs.CanCopy     = (*Adapter)(nil)
	_ livefs.CanMove     = (*Adapter)(nil)
	_ livefs.CanChecksum = (*Adapter)(nil)
	_ livefs.CanWatch    = (*Adapter)(nil)
)
