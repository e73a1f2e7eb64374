package ogn

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileExtension returns the lowercase extension of a file name without the dot,
// e.g., "binvox" for "/data/model.binvox".
func FileExtension(fname string) string {
	ext := filepath.Ext(fname)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ConvertToAbsolute returns an absolute path for p, treating relative paths as
// relative to baseDir.
func ConvertToAbsolute(p, baseDir string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("cannot convert empty path to absolute path")
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(filepath.Join(baseDir, p))
}

// Log2 returns the base 2 logarithm of n if n is a positive power of two.
func Log2(n int) (level int, ok bool) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, false
	}
	for n > 1 {
		n >>= 1
		level++
	}
	return level, true
}

// CeilLog2 returns the smallest level such that 1<<level >= n.  Returns 0 for n <= 1.
func CeilLog2(n int) int {
	level := 0
	for (1 << level) < n {
		level++
	}
	return level
}
