// Package contenttype resolves file paths to MIME types by suffix.
//
// Resolution never looks at content and never fails: unknown suffixes map
// to application/octet-stream.
package contenttype

import (
	"path"
	"strings"
)

// Resolver maps paths to MIME types with a static suffix table.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	table map[string]string
}

// New creates a resolver over the built-in table. Entries in extra are
// added on top and take precedence; keys are suffixes without the leading
// dot ("css", "tar.gz").
func New(extra map[string]string) *Resolver {
	table := make(map[string]string, len(defaultTable)+len(extra))
	for k, v := range defaultTable {
		table[k] = v
	}
	for k, v := range extra {
		table[strings.ToLower(strings.TrimPrefix(k, "."))] = v
	}
	return &Resolver{table: table}
}

var std = New(nil)

// Default returns the resolver over the built-in table.
func Default() *Resolver {
	return std
}

// MimeType returns the MIME type for p, preferring the longest matching
// suffix of the base name.
func (r *Resolver) MimeType(p string) string {
	name := strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
	for i := 0; i < len(name); i++ {
		if name[i] != '.' {
			continue
		}
		if t, ok := r.table[name[i+1:]]; ok {
			return t
		}
	}
	return OctetStream
}

// IsMedia reports whether p is audio or video content.
func (r *Resolver) IsMedia(p string) bool {
	t := r.MimeType(p)
	return t == ApplicationOGG || strings.HasPrefix(t, "audio/") || strings.HasPrefix(t, "video/")
}

// IsImage reports whether p is image content.
func (r *Resolver) IsImage(p string) bool {
	return strings.HasPrefix(r.MimeType(p), "image/")
}

// MimeType resolves p with the default resolver.
func MimeType(p string) string { return std.MimeType(p) }

// IsMedia classifies p with the default resolver.
func IsMedia(p string) bool { return std.IsMedia(p) }

// IsImage classifies p with the default resolver.
func IsImage(p string) bool { return std.IsImage(p) }
