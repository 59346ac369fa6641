package livefs

import (
	"context"
	"io"
	"time"
)

// FileInfo describes a node of the virtual filesystem.
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
	// Hash is an opaque content digest. It changes iff the file content
	// changes and is empty for directories.
	Hash     string
	Metadata map[string]string
}

// IsFile reports whether the node is a regular file.
func (fi FileInfo) IsFile() bool {
	return !fi.IsDir
}

// ============================================================================
// Core Interfaces (Interface Segregation)
// ============================================================================

// FileReader provides read-only filesystem access.
// The live preview server only ever depends on this half of the contract.
type FileReader interface {
	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// ReadAll reads the entire file into memory.
	ReadAll(ctx context.Context, path string) ([]byte, error)

	// FileExists checks if a file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists checks if a directory exists at path.
	DirExists(ctx context.Context, path string) (bool, error)

	// Stat returns file/directory metadata.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ListContents lists directory contents.
	// If recursive is true, includes all descendants.
	ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error)
}

// FileWriter provides write filesystem operations.
type FileWriter interface {
	// Write writes content from reader to path, creating parent directories.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) error

	// Delete removes a file.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory (and parents if needed).
	CreateDir(ctx context.Context, path string) error

	// DeleteDir removes a directory and all contents.
	DeleteDir(ctx context.Context, path string) error
}

// FileSystem provides full read-write filesystem access.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Drivers expose optional capabilities through these interfaces.
// Use a type assertion to check for support:
//
//	if mover, ok := fs.(CanMove); ok {
//	    mover.Move(ctx, "old.html", "new.html")
//	}

// CanCopy indicates the filesystem supports native copy operations.
type CanCopy interface {
	Copy(ctx context.Context, src, dst string) error
}

// CanMove indicates the filesystem supports native rename operations.
type CanMove interface {
	Move(ctx context.Context, src, dst string) error
}

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA256 is the SHA-256 hash algorithm
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumXXHash is the xxHash algorithm (64-bit). FileInfo.Hash uses it.
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
)

// CanChecksum indicates the filesystem can compute content digests.
type CanChecksum interface {
	// Checksum calculates the checksum of a file using the specified algorithm.
	// Returns the checksum as a hex-encoded string.
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)
}

// ============================================================================
// File Watching Interface (ChangeToken Pattern)
// ============================================================================

// ChangeToken represents a change notification token.
//
// Consumers can either poll HasChanged or register a callback via
// RegisterChangeCallback. Tokens are single-use: once HasChanged returns
// true it stays true.
type ChangeToken interface {
	// HasChanged returns true if a change has occurred.
	HasChanged() bool

	// ActiveChangeCallbacks indicates if the token proactively raises callbacks.
	// If false, consumers should poll HasChanged instead.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the filesystem supports file change notifications.
//
// Example:
//
//	if watcher, ok := fs.(CanWatch); ok {
//	    cancel := OnChange(ctx,
//	        func() (ChangeToken, error) { return watcher.Watch(ctx, ".phcode.json") },
//	        reloadProjectPreferences,
//	    )
//	    defer cancel()
//	}
type CanWatch interface {
	// Watch creates a change token for the specified glob pattern
	// ("**/*.json", "src/*", ".phcode.json"). The token signals when any
	// matching file is created, modified, or deleted.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
