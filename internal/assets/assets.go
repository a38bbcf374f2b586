// Package assets resolves the pre-recorded sounds the assistant plays.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrAssetMissing = errors.New("asset missing")

// Library maps logical asset names to files under Dir. Names without an
// alias are looked up as-is.
type Library struct {
	Dir     string
	Aliases map[string]string
}

func NewLibrary(dir string, aliases map[string]string) *Library {
	if dir == "" {
		dir = "."
	}
	return &Library{Dir: dir, Aliases: aliases}
}

// Resolve returns the path of a readable regular file for name.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrAssetMissing)
	}
	file := name
	if alias, ok := l.Aliases[name]; ok && alias != "" {
		file = alias
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(l.Dir, file)
	}

	st, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrAssetMissing, file)
		}
		return "", fmt.Errorf("stat asset %s: %w", file, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrAssetMissing, file)
	}
	return file, nil
}
