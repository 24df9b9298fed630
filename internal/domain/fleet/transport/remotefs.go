package transport

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// exitNotExist is the status the read script uses for an absent file.
const exitNotExist = 3

// HostFS implements ports.RemoteFS with shell commands over a Connection.
type HostFS struct {
	conn Connection
	sudo bool
}

// HostFSOption configures a HostFS.
type HostFSOption func(*HostFS)

// WithSudo runs every file command through sudo -n.
func WithSudo(enabled bool) HostFSOption {
	return func(fs *HostFS) {
		fs.sudo = enabled
	}
}

// NewHostFS creates a HostFS over conn.
func NewHostFS(conn Connection, opts ...HostFSOption) *HostFS {
	fs := &HostFS{conn: conn}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *HostFS) wrap(cmd string) string {
	if fs.sudo {
		return Sudo(cmd)
	}
	return cmd
}

func (fs *HostFS) run(ctx context.Context, op, cmd string, stdin []byte) (*CommandResult, error) {
	var (
		res *CommandResult
		err error
	)
	if stdin != nil {
		res, err = fs.conn.RunWithInput(ctx, fs.wrap(cmd), bytes.NewReader(stdin))
	} else {
		res, err = fs.conn.Run(ctx, fs.wrap(cmd))
	}
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", op, fs.conn.Host().ID(), err)
	}
	return res, nil
}

// ReadFile returns the content of p; exists is false when p is absent.
func (fs *HostFS) ReadFile(ctx context.Context, p string) ([]byte, bool, error) {
	q := Quote(p)
	cmd := fmt.Sprintf("if [ -e %s ]; then cat -- %s; else exit %d; fi", q, q, exitNotExist)
	res, err := fs.run(ctx, "read "+p, cmd, nil)
	if err != nil {
		return nil, false, err
	}
	if res.ExitCode == exitNotExist {
		return nil, false, nil
	}
	if err := res.Err(); err != nil {
		return nil, false, fmt.Errorf("read %s on %s: %w", p, fs.conn.Host().ID(), err)
	}
	return res.Stdout, true, nil
}

// WriteFile replaces the content of p, creating it when missing.
func (fs *HostFS) WriteFile(ctx context.Context, p string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	res, err := fs.run(ctx, "write "+p, "cat > "+Quote(p), data)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("write %s on %s: %w", p, fs.conn.Host().ID(), err)
	}
	return nil
}

// ListSiblingBackups lists the directory of p and keeps the names that
// start with its base name plus ".bak".
func (fs *HostFS) ListSiblingBackups(ctx context.Context, p string) ([]string, error) {
	dir, base := path.Split(p)
	if dir == "" {
		dir = "."
	}
	q := Quote(dir)
	cmd := fmt.Sprintf("[ -d %s ] || exit 0; ls -1a -- %s", q, q)
	res, err := fs.run(ctx, "list "+dir, cmd, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("list %s on %s: %w", dir, fs.conn.Host().ID(), err)
	}

	prefix := base + ".bak"
	var names []string
	for _, name := range strings.Split(string(res.Stdout), "\n") {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CopyFile copies src to dst keeping mode and ownership. A missing src
// yields an error wrapping ErrNotExist.
func (fs *HostFS) CopyFile(ctx context.Context, src, dst string) error {
	return fs.onExisting(ctx, "copy", src, "cp -p -- "+Quote(src)+" "+Quote(dst))
}

// Rename moves src over dst. A missing src yields an error wrapping
// ErrNotExist.
func (fs *HostFS) Rename(ctx context.Context, src, dst string) error {
	return fs.onExisting(ctx, "rename", src, "mv -f -- "+Quote(src)+" "+Quote(dst))
}

func (fs *HostFS) onExisting(ctx context.Context, verb, src, cmd string) error {
	op := verb + " " + src
	guarded := fmt.Sprintf("[ -e %s ] || exit %d; %s", Quote(src), exitNotExist, cmd)
	res, err := fs.run(ctx, op, guarded, nil)
	if err != nil {
		return err
	}
	if res.ExitCode == exitNotExist {
		return fmt.Errorf("%s on %s: %w", op, fs.conn.Host().ID(), ErrNotExist)
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("%s on %s: %w", op, fs.conn.Host().ID(), err)
	}
	return nil
}

// Ensure HostFS implements ports.RemoteFS.
var _ ports.RemoteFS = (*HostFS)(nil)
