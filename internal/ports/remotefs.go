// Package ports defines the interfaces the configuration engine uses to
// reach the outside world: the filesystem of a target host and logging.
package ports

import (
	"context"
)

// RemoteFS is the engine's view of a target host's filesystem. Paths are
// slash-separated and absolute or relative to the host's working directory.
//
// The engine only reads, writes and lists; CopyFile and Rename are how a
// backup is persisted (copy or move of the live file) and how one is
// restored during revert.
type RemoteFS interface {
	// ReadFile returns the content of path. exists is false, with a nil
	// error, when the file is absent.
	ReadFile(ctx context.Context, path string) (content []byte, exists bool, err error)

	// WriteFile replaces the content of path, creating it when missing.
	WriteFile(ctx context.Context, path string, data []byte) error

	// ListSiblingBackups returns the names (not paths) of the entries in the
	// directory of path that start with the base name of path plus ".bak".
	ListSiblingBackups(ctx context.Context, path string) ([]string, error)

	// CopyFile copies src to dst, overwriting dst.
	CopyFile(ctx context.Context, src, dst string) error

	// Rename moves src over dst.
	Rename(ctx context.Context, src, dst string) error
}
