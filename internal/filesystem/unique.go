package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxUniqueAttempts bounds the counter so a broken predicate cannot spin forever.
const maxUniqueAttempts = 10000

// UniqueName returns name, or the first "base (N).ext" variant for which taken
// reports false. taken is consulted again for every candidate.
func UniqueName(name string, taken func(candidate string) (bool, error)) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; n <= maxUniqueAttempts; n++ {
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxUniqueAttempts)
}

// InDir returns a predicate that reports whether a candidate exists in dir.
func InDir(dir string) func(string) (bool, error) {
	return func(candidate string) (bool, error) {
		return Exists(filepath.Join(dir, candidate))
	}
}
