// Package slug turns arbitrary upload filenames into SEO-friendly WebP
// filenames: lower-case ASCII letters, digits and single hyphens.
package slug

import (
	"strings"
	"unicode"
)

const (
	// Ext is appended to every normalized name.
	Ext = ".webp"
	// Fallback replaces names with nothing usable left in them.
	Fallback = "image"
)

// Normalize maps an original filename to its output filename.
//
// The final extension (the last '.' plus at least one following character) is
// dropped, the rest is lower-cased and trimmed, whitespace runs become a
// single hyphen, everything outside [a-z0-9-] is removed, hyphen runs are
// collapsed and stripped from both ends.  An empty stem becomes "image".
// The result always ends in ".webp" and Normalize(Normalize(s)) ==
// Normalize(s).
func Normalize(originalName string) string {
	return Stem(originalName) + Ext
}

// Stem is Normalize without the ".webp" suffix.
func Stem(originalName string) string {
	s := stripExt(originalName)
	s = strings.ToLower(s)
	s = strings.TrimFunc(s, isSpace)
	s = strings.Join(strings.FieldsFunc(s, isSpace), "-")
	s = strings.Map(keep, s)
	// Splitting on '-' drops empty fields, which both collapses runs and
	// strips leading and trailing hyphens.
	s = strings.Join(strings.FieldsFunc(s, isHyphen), "-")
	if s == "" {
		return Fallback
	}
	return s
}

func stripExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return name
	}
	return name[:i]
}

// isSpace matches the whitespace class used for trimming and hyphenation:
// Unicode white space plus the byte-order mark, minus NEL (U+0085), which
// is dropped like any other symbol.
func isSpace(r rune) bool {
	return (unicode.IsSpace(r) && r != '\u0085') || r == '\uFEFF'
}

func isHyphen(r rune) bool { return r == '-' }

func keep(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		return r
	}
	return -1
}
