// Package checksum provides deterministic content hashing used for
// identifier disambiguation and download integrity logging.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// SHA256 computes SHA-256 digests. It is a zero-size type and is safe for
// concurrent use by multiple goroutines.
type SHA256 struct{}

// New creates a new SHA-256 based calculator.
// Returns by value to avoid heap allocation (SHA256 is a zero-size type).
func New() SHA256 {
	return SHA256{}
}

// Calculate computes the hex-encoded SHA-256 of content.
func (c SHA256) Calculate(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Short computes a short hex digest of content, n hex characters long.
// Used as a disambiguation suffix when identifier truncation would make two
// different names collide. n must be between 1 and 64.
func (c SHA256) Short(content []byte, n int) string {
	full := c.Calculate(content)
	if n < 1 {
		n = 1
	}
	if n > len(full) {
		n = len(full)
	}
	return full[:n]
}

// CalculateFile computes the hex-encoded SHA-256 of a file's content,
// streaming rather than loading the file into memory.
func (c SHA256) CalculateFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
