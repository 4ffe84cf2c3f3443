package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FS is the artifact store: a directory tree rooted at Root. Containers are
// direct children of Root.
type FS struct {
	root string
}

// NewFS creates root if needed and returns a store over its absolute path.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FS{root: abs}, nil
}

func (s *FS) Root() string { return s.root }

// Path returns the absolute path of a container.
func (s *FS) Path(name string) string { return filepath.Join(s.root, name) }

// Exists reports whether a container with this name is present.
func (s *FS) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Mkdir creates the container or fails with fs.ErrExist if it is taken.
func (s *FS) Mkdir(name string) error {
	return os.Mkdir(s.Path(name), 0o755)
}

// CreateUnique writes data into dir under name, or under name_1, name_2, ...
// (counter inserted before the extension) if name is already taken. The file
// is opened with O_EXCL so concurrent writers never share a file. It returns
// the absolute path written.
func (s *FS) CreateUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	candidate := name
	for n := 1; ; n++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			candidate = stem + "_" + strconv.Itoa(n) + ext
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return path, err
		}
		return path, f.Close()
	}
}
