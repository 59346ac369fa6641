package webserver

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
)

type virtualDoc struct {
	content []byte
	modTime time.Time
	hash    string
}

// Overlay serves unsaved editor text ahead of the wrapped filesystem.
// Paths are absolute in the wrapped namespace. Virtual documents shadow
// the file at the same path and show up in listings of their directory.
type Overlay struct {
	base  livefs.FileReader
	types *contenttype.Resolver
	now   func() time.Time

	mu   sync.RWMutex
	docs map[string]*virtualDoc
}

// NewOverlay wraps base.
func NewOverlay(base livefs.FileReader) *Overlay {
	return &Overlay{
		base:  base,
		types: contenttype.Default(),
		now:   time.Now,
		docs:  make(map[string]*virtualDoc),
	}
}

// Unwrap returns the wrapped filesystem.
func (o *Overlay) Unwrap() livefs.FileReader {
	return o.base
}

// AddVirtualContentAtPath serves text at fullPath until it is removed.
func (o *Overlay) AddVirtualContentAtPath(fullPath, text string) {
	data := []byte(text)
	o.mu.Lock()
	o.docs[overlayKey(fullPath)] = &virtualDoc{
		content: data,
		modTime: o.now(),
		hash:    livefs.ContentHash(data),
	}
	o.mu.Unlock()
}

// RemoveVirtualContentAtPath drops the virtual document at fullPath.
func (o *Overlay) RemoveVirtualContentAtPath(fullPath string) {
	o.mu.Lock()
	delete(o.docs, overlayKey(fullPath))
	o.mu.Unlock()
}

// Clear drops every virtual document.
func (o *Overlay) Clear() {
	o.mu.Lock()
	o.docs = make(map[string]*virtualDoc)
	o.mu.Unlock()
}

func (o *Overlay) lookup(p string) (string, *virtualDoc) {
	key := overlayKey(p)
	o.mu.RLock()
	defer o.mu.RUnlock()
	return key, o.docs[key]
}

func (o *Overlay) info(key string, doc *virtualDoc) livefs.FileInfo {
	return livefs.FileInfo{
		Name:        path.Base(key),
		Path:        key,
		Size:        int64(len(doc.content)),
		ModTime:     doc.modTime,
		ContentType: o.types.MimeType(key),
		Hash:        doc.hash,
		Metadata:    map[string]string{"virtual": "true"},
	}
}

func (o *Overlay) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if _, doc := o.lookup(p); doc != nil {
		return io.NopCloser(bytes.NewReader(doc.content)), nil
	}
	return o.base.Read(ctx, p)
}

func (o *Overlay) ReadAll(ctx context.Context, p string) ([]byte, error) {
	if _, doc := o.lookup(p); doc != nil {
		return bytes.Clone(doc.content), nil
	}
	return o.base.ReadAll(ctx, p)
}

func (o *Overlay) FileExists(ctx context.Context, p string) (bool, error) {
	if _, doc := o.lookup(p); doc != nil {
		return true, nil
	}
	return o.base.FileExists(ctx, p)
}

func (o *Overlay) DirExists(ctx context.Context, p string) (bool, error) {
	return o.base.DirExists(ctx, p)
}

func (o *Overlay) Stat(ctx context.Context, p string) (*livefs.FileInfo, error) {
	if key, doc := o.lookup(p); doc != nil {
		info := o.info(key, doc)
		return &info, nil
	}
	return o.base.Stat(ctx, p)
}

// ListContents merges the virtual documents lying directly under p into
// the wrapped listing. Recursive listings are passed through.
func (o *Overlay) ListContents(ctx context.Context, p string, recursive bool) ([]livefs.FileInfo, error) {
	entries, err := o.base.ListContents(ctx, p, recursive)
	if err != nil || recursive {
		return entries, err
	}

	dir := overlayKey(p)
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.docs) == 0 {
		return entries, nil
	}

	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}
	for key, doc := range o.docs {
		if path.Dir(key) != dir {
			continue
		}
		info := o.info(key, doc)
		if i, ok := byName[info.Name]; ok {
			if entries[i].IsDir {
				continue
			}
			info.Path = entries[i].Path
			entries[i] = info
			continue
		}
		entries = append(entries, info)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func overlayKey(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

var _ livefs.FileReader = (*Overlay)(nil)
