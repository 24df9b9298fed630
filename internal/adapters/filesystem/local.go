// Package filesystem provides a ports.RemoteFS over the local disk.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

const defaultPerm fs.FileMode = 0o644

// LocalFS implements ports.RemoteFS using the local file system. Relative
// paths resolve against root when one is set.
type LocalFS struct {
	root string
}

// NewLocalFS creates a LocalFS. An empty root uses paths as given.
func NewLocalFS(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) resolve(p string) string {
	p = filepath.FromSlash(p)
	if l.root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.root, p)
}

// ReadFile returns the file content; a missing file is not an error.
func (l *LocalFS) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteFile replaces path through a temporary file in the same directory,
// keeping the mode of the file it replaces.
func (l *LocalFS) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := l.resolve(path)

	perm := defaultPerm
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ListSiblingBackups lists names in the directory of path that start with
// its base name plus ".bak". A missing directory yields no names.
func (l *LocalFS) ListSiblingBackups(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := l.resolve(path)
	prefix := filepath.Base(target) + ".bak"

	entries, err := os.ReadDir(filepath.Dir(target))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CopyFile copies src to dst with the mode of src.
func (l *LocalFS) CopyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := l.resolve(src)

	data, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	return os.WriteFile(l.resolve(dst), data, info.Mode().Perm())
}

// Rename moves src over dst.
func (l *LocalFS) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(l.resolve(src), l.resolve(dst))
}

// Ensure LocalFS implements ports.RemoteFS.
var _ ports.RemoteFS = (*LocalFS)(nil)
