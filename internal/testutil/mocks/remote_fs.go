// Package mocks provides test doubles for testing.
package mocks

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Op names a RemoteFS operation for failure injection and call recording.
type Op string

// RemoteFS operations.
const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpList   Op = "list"
	OpCopy   Op = "copy"
	OpRename Op = "rename"
)

// Call is one recorded RemoteFS invocation.
type Call struct {
	Op   Op
	Path string
	// Dst is set for copy and rename.
	Dst string
}

// RemoteFS is a thread-safe in-memory test double for ports.RemoteFS.
type RemoteFS struct {
	mu       sync.RWMutex
	files    map[string][]byte
	failures map[Op]error
	calls    []Call
}

// NewRemoteFS creates a new RemoteFS mock.
func NewRemoteFS() *RemoteFS {
	return &RemoteFS{
		files:    make(map[string][]byte),
		failures: make(map[Op]error),
	}
}

// AddFile adds a file to the mock filesystem.
func (fs *RemoteFS) AddFile(p, content string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[p] = []byte(content)
}

// Content returns the content of p and whether it exists.
func (fs *RemoteFS) Content(p string) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	c, ok := fs.files[p]
	return string(c), ok
}

// Paths returns every file path, sorted.
func (fs *RemoteFS) Paths() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, 0, len(fs.files))
	for p := range fs.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (fs *RemoteFS) FailOn(op Op, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err == nil {
		delete(fs.failures, op)
		return
	}
	fs.failures[op] = err
}

// Calls returns all recorded invocations.
func (fs *RemoteFS) Calls() []Call {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	calls := make([]Call, len(fs.calls))
	copy(calls, fs.calls)
	return calls
}

// CountCalls returns how many times op was invoked.
func (fs *RemoteFS) CountCalls(op Op) int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n := 0
	for _, c := range fs.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// record appends a call and returns the injected failure for op, if any.
// Callers hold the write lock.
func (fs *RemoteFS) record(op Op, p, dst string) error {
	fs.calls = append(fs.calls, Call{Op: op, Path: p, Dst: dst})
	return fs.failures[op]
}

// ReadFile implements ports.RemoteFS.
func (fs *RemoteFS) ReadFile(ctx context.Context, p string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.record(OpRead, p, ""); err != nil {
		return nil, false, err
	}
	c, ok := fs.files[p]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(c))
	copy(out, c)
	return out, true, nil
}

// WriteFile implements ports.RemoteFS.
func (fs *RemoteFS) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.record(OpWrite, p, ""); err != nil {
		return err
	}
	c := make([]byte, len(data))
	copy(c, data)
	fs.files[p] = c
	return nil
}

// ListSiblingBackups implements ports.RemoteFS.
func (fs *RemoteFS) ListSiblingBackups(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.record(OpList, p, ""); err != nil {
		return nil, err
	}
	dir, base := path.Split(p)
	prefix := base + ".bak"
	var names []string
	for f := range fs.files {
		d, name := path.Split(f)
		if d == dir && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CopyFile implements ports.RemoteFS.
func (fs *RemoteFS) CopyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.record(OpCopy, src, dst); err != nil {
		return err
	}
	c, ok := fs.files[src]
	if !ok {
		return fmt.Errorf("copy %s: file not found", src)
	}
	cp := make([]byte, len(c))
	copy(cp, c)
	fs.files[dst] = cp
	return nil
}

// Rename implements ports.RemoteFS.
func (fs *RemoteFS) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.record(OpRename, src, dst); err != nil {
		return err
	}
	c, ok := fs.files[src]
	if !ok {
		return fmt.Errorf("rename %s: file not found", src)
	}
	fs.files[dst] = c
	delete(fs.files, src)
	return nil
}

var _ ports.RemoteFS = (*RemoteFS)(nil)
