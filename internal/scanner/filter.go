package scanner

import (
	"path"
	"path/filepath"
	"strings"
)

func shouldIgnore(name string, ignoreList []string) bool {
	for _, pattern := range ignoreList {
		matched, err := filepath.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}

	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func extOf(name string) string {
	return normalizeExt(path.Ext(name))
}
