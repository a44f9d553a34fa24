package ingest

import (
	"path"
	"strings"
)

// SafeFilename strips directory components and any character outside
// [A-Za-z0-9._-] from a filename taken from untrusted input (email
// attachment names, archive members). Backslash separators are treated as
// directories too, since mail clients send Windows paths.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "file"
	}
	return cleaned
}
