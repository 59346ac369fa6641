package livefs

import "context"

// Exists reports whether anything, file or directory, lives at path.
// Lookup failures count as absence.
func Exists(ctx context.Context, fs FileReader, path string) bool {
	_, err := fs.Stat(ctx, path)
	return err == nil
}

// ReadDir returns the immediate children of the directory at path.
func ReadDir(ctx context.Context, fs FileReader, path string) ([]FileInfo, error) {
	return fs.ListContents(ctx, path, false)
}

// ReadFile reads the whole file at path.
func ReadFile(ctx context.Context, fs FileReader, path string) ([]byte, error) {
	return fs.ReadAll(ctx, path)
}
