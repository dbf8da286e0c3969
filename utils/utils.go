package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^\w.\-]`)

func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// SanitizeFilename strips any directory part and replaces characters outside
// [A-Za-z0-9_.-]. It returns "" for names that reduce to dots only.
func SanitizeFilename(name string) string {
	clean := unsafeChars.ReplaceAllString(filepath.Base(filepath.ToSlash(name)), "_")
	if strings.Trim(clean, ".") == "" {
		return ""
	}
	return clean
}
