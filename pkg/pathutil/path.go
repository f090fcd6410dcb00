// Package pathutil normalizes the slash separated paths used as inventory keys and
// remote object names, and classifies file content types by extension.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

const sep = "/"

// IsRelative reports whether p does not start at the filesystem root.
func IsRelative(p string) bool {
	return !strings.HasPrefix(filepath.ToSlash(p), sep)
}

// TrimTrailingSlash removes a single trailing slash.
func TrimTrailingSlash(p string) string {
	return strings.TrimSuffix(p, sep)
}

// Shrink resolves "." and ".." elements without touching the filesystem. Unlike
// path.Clean an empty path stays empty and a trailing slash is kept.
func Shrink(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.ToSlash(p)
	trailing := strings.HasSuffix(p, sep) && p != sep
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	if trailing {
		cleaned += sep
	}
	return cleaned
}

// RelativeTo returns p relative to root. Paths outside root are returned unchanged
// (normalized), and an empty root leaves p as is.
func RelativeTo(p, root string) string {
	p = Shrink(p)
	root = TrimTrailingSlash(Shrink(root))
	if root == "" {
		return p
	}
	if p == root {
		return ""
	}
	if root == sep {
		return strings.TrimPrefix(p, sep)
	}
	if strings.HasPrefix(p, root+sep) {
		return p[len(root)+1:]
	}
	return p
}

// Absolute resolves a relative p against root; absolute paths are returned normalized.
func Absolute(p, root string) string {
	p = Shrink(p)
	if !IsRelative(p) {
		return p
	}
	return Shrink(TrimTrailingSlash(Shrink(root)) + sep + p)
}
