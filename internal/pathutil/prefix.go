// Package pathutil holds the string helpers used to name archive entries
// and to validate logical paths before they reach a storage backend.
package pathutil

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CommonPrefix returns the longest leading run of characters shared by all
// paths. It folds CommonPrefix2 left to right and returns "" for no input.
func CommonPrefix(paths ...string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		if prefix == "" {
			break
		}
		prefix = CommonPrefix2(prefix, p)
	}
	return prefix
}

// CommonPrefix2 returns the longest common prefix of a and b, compared rune
// by rune so a multi-byte character is never split. Invalid UTF-8 bytes are
// compared as themselves.
func CommonPrefix2(a, b string) string {
	i := 0
	for i < len(a) && i < len(b) {
		ra, na := utf8.DecodeRuneInString(a[i:])
		rb, nb := utf8.DecodeRuneInString(b[i:])
		if ra != rb || na != nb {
			break
		}
		if ra == utf8.RuneError && a[i:i+na] != b[i:i+nb] {
			break
		}
		i += na
	}
	return a[:i]
}

// Normalize returns p in Unicode NFC so that visually identical paths
// produced by different clients share a prefix.
func Normalize(p string) string {
	return norm.NFC.String(p)
}

// StripPrefix removes prefix from the start of p. A p that does not start
// with prefix is returned unchanged.
func StripPrefix(p, prefix string) string {
	return strings.TrimPrefix(p, prefix)
}

// EntryName derives an archive entry name for requested path p under the
// batch prefix. Archive names are relative, so slashes left at either end
// by the strip are dropped. A path requested on its own strips to nothing
// and falls back to its last element.
func EntryName(p, prefix string) string {
	name := Clean(StripPrefix(p, prefix))
	if name == "" {
		name = path.Base(strings.TrimRight(p, "/"))
		if name == "/" || name == "." {
			name = ""
		}
	}
	return name
}

// JoinEntry appends a child name to an archive entry name.
func JoinEntry(name, child string) string {
	if name == "" {
		return child
	}
	return name + "/" + child
}
