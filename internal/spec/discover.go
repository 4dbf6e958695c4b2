package spec

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches conventional case file layouts.
var DefaultInclude = []string{"**/*.yml", "**/*.yaml"}

// FindCases walks root and returns case file paths matching any include
// pattern and no exclude pattern. Patterns are doublestar globs
// evaluated against the slash-separated path relative to root. Results
// are sorted so suite ordering is stable across platforms.
func FindCases(root string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cases directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchesAny(include, rel) || matchesAny(exclude, rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cases: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadCases loads every case found under root, failing on the first
// invalid file. Duplicate case names are rejected since results are
// keyed by name.
func LoadCases(root string, include, exclude []string) ([]*Case, error) {
	paths, err := FindCases(root, include, exclude)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(paths))
	cases := make([]*Case, 0, len(paths))
	for _, path := range paths {
		c, err := LoadCase(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate case name %q in %s (already defined in %s)",
				c.Name, path, prev)
		}
		seen[c.Name] = path
		cases = append(cases, c)
	}
	return cases, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		// Patterns are validated at suite load; a broken pattern here
		// simply never matches.
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
		// Allow bare-name convenience patterns like "*.yml" to match in
		// subdirectories too.
		if !strings.Contains(p, "/") {
			if ok, err := doublestar.Match("**/"+p, rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}
