package livefs

import "time"

// Option represents a write option
type Option func(*Options)

// Options contains all possible options for write operations
type Options struct {
	// ContentType overrides the MIME type stored with the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// ModTime pins the modification time instead of using the clock
	ModTime *time.Time
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithModTime sets the modification time recorded for the file
func WithModTime(t time.Time) Option {
	return func(o *Options) {
		o.ModTime = &t
	}
}

// ApplyOptions folds opts into an Options value.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
