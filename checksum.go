package livefs

import (
	"context"
	"crypto/md5" //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
)

// NewHasher creates a new hash.Hash for the given algorithm.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec // MD5 used for checksum verification, not security
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash returns the node hash stored in FileInfo.Hash for data.
// It is the zero-padded hex form of the 64-bit xxHash digest.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// VerifyChecksum reports whether the file at path has the expected digest.
// Filesystems without CanChecksum are hashed by streaming the content.
func VerifyChecksum(ctx context.Context, fs FileReader, path, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	if checksummer, ok := fs.(CanChecksum); ok {
		actual, err := checksummer.Checksum(ctx, path, algorithm)
		if err != nil {
			return false, err
		}
		return actual == expected, nil
	}

	rc, err := fs.Read(ctx, path)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	actual, err := CalculateChecksum(rc, algorithm)
	if err != nil {
		return false, &PathError{Op: "checksum", Path: path, Err: err}
	}
	return actual == expected, nil
}
