// Package ident derives PostgreSQL identifiers from workbook-facing names.
//
// Sanitization is deterministic: the same input always yields the same
// identifier. When the length limit forces truncation, a short content-hash
// suffix of the untruncated name is appended so that two long names that
// differ only past the truncation point never silently collide.
package ident

import (
	"strings"
	"time"
	"unicode"

	"github.com/sheetflow/sheetflow/internal/checksum"
)

const (
	// hashSuffixLen is the number of hex characters appended when a name
	// is truncated. Combined with the separator this costs 7 characters.
	hashSuffixLen = 6

	// stampLayout is fixed-width and most-significant-first, so lexical
	// order of generated names is chronological order. Cleanup depends on
	// this property.
	stampLayout = "20060102_150405"

	physicalPrefix = "phys_"
)

// Sanitize converts raw into a valid PostgreSQL identifier no longer than
// maxLen: lower-cased, [a-z0-9_] only, starting with a letter. Truncation
// appends a disambiguating hash suffix of the full sanitized name.
func Sanitize(raw string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '.', r == '/':
			b.WriteByte('_')
		default:
			// Anything else (punctuation, non-ASCII) folds to underscore
			// as well; the hash suffix keeps long names distinct.
			b.WriteByte('_')
		}
	}

	name := collapseUnderscores(b.String())
	name = strings.Trim(name, "_")
	if name == "" {
		name = "t"
	}
	if !isLetter(name[0]) {
		name = "t_" + name
	}

	return truncate(name, maxLen)
}

// Physical derives the versioned physical table name for a logical name.
// The fixed-width UTC stamp always survives length trimming; only the
// logical part is truncated (with a hash suffix) to fit.
func Physical(logical string, at time.Time, maxLen int) string {
	stamp := at.UTC().Format(stampLayout)
	avail := maxLen - len(physicalPrefix) - 1 - len(stamp)
	return physicalPrefix + truncate(logical, avail) + "_" + stamp
}

// PhysicalPrefix returns the catalog search prefix matching every physical
// table ever generated for logical under the same length limit.
func PhysicalPrefix(logical string, maxLen int) string {
	avail := maxLen - len(physicalPrefix) - 1 - len(stampLayout)
	return physicalPrefix + truncate(logical, avail) + "_"
}

// truncate shortens name to maxLen, replacing the tail with a short hash of
// the full name so distinct long names stay distinct.
func truncate(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	keep := maxLen - hashSuffixLen - 1
	if keep < 1 {
		keep = 1
	}
	suffix := checksum.New().Short([]byte(name), hashSuffixLen)
	return name[:keep] + "_" + suffix
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}
