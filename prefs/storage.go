package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
)

// Storage loads and saves the raw key-value data of one scope.
type Storage interface {
	Load(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, data map[string]any) error
}

// MemoryStorage keeps scope data in memory only.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]any
}

// NewMemoryStorage creates a storage seeded with data (may be nil).
func NewMemoryStorage(data ...map[string]any) *MemoryStorage {
	s := &MemoryStorage{data: map[string]any{}}
	if len(data) > 0 && data[0] != nil {
		s.data = cloneData(data[0])
	}
	return s
}

func (s *MemoryStorage) Load(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneData(s.data), nil
}

func (s *MemoryStorage) Save(_ context.Context, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cloneData(data)
	return nil
}

// FileStorage keeps scope data in a JSON settings file on a livefs
// filesystem. The path can be swapped when the project changes.
type FileStorage struct {
	fs              livefs.FileSystem
	createIfMissing bool

	mu   sync.RWMutex
	path string
}

// NewFileStorage creates a storage for the JSON file at path. With
// createIfMissing a missing file loads as empty; otherwise it is an error.
// An empty path loads as empty and saves nowhere.
func NewFileStorage(fs livefs.FileSystem, path string, createIfMissing bool) *FileStorage {
	return &FileStorage{fs: fs, path: path, createIfMissing: createIfMissing}
}

// Path returns the settings file path.
func (s *FileStorage) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// SetPath points the storage at another settings file. The owning scope
// must be reloaded afterwards.
func (s *FileStorage) SetPath(p string) {
	s.mu.Lock()
	s.path = p
	s.mu.Unlock()
}

// Load reads and parses the settings file. Malformed JSON yields a
// *ParseError matching ErrCorruptScope.
func (s *FileStorage) Load(ctx context.Context) (map[string]any, error) {
	p := s.Path()
	if p == "" {
		return map[string]any{}, nil
	}

	raw, err := s.fs.ReadAll(ctx, p)
	if err != nil {
		if livefs.IsNotExist(err) && s.createIfMissing {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &ParseError{Path: p, Err: err}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// Save writes data as indented JSON.
func (s *FileStorage) Save(ctx context.Context, data map[string]any) error {
	p := s.Path()
	if p == "" {
		return nil
	}

	raw, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return s.fs.Write(ctx, p, bytes.NewReader(raw), livefs.WithContentType(contenttype.ApplicationJSON))
}

// Watch returns a token that fires when the settings file changes. Native
// watches are used when the filesystem supports them; otherwise the file
// is polled every interval.
func (s *FileStorage) Watch(ctx context.Context, interval time.Duration) (livefs.ChangeToken, error) {
	p := s.Path()
	if p == "" {
		return livefs.NeverChangeToken{}, nil
	}
	if watcher, ok := s.fs.(livefs.CanWatch); ok {
		return watcher.Watch(ctx, p)
	}
	return livefs.NewPollingChangeToken(ctx, livefs.PollingConfig{
		Interval:  interval,
		CheckFunc: livefs.StatChangeCheck(ctx, s.fs, p),
	}), nil
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)
