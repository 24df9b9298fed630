// Package transport runs commands on cluster hosts, over SSH or locally,
// and exposes a host's files to the configuration engine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

// ErrNotExist is returned by connection-level file operations for an
// absent path.
var ErrNotExist = errors.New("no such file")

// CommandResult holds the result of a remote command execution.
type CommandResult struct {
	// ExitCode is the command's exit code.
	ExitCode int
	// Stdout is the standard output.
	Stdout []byte
	// Stderr is the standard error output.
	Stderr []byte
	// Duration is how long the command took.
	Duration time.Duration
}

// Success returns true if the command exited with code 0.
func (r *CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CombinedOutput returns stdout and stderr combined.
func (r *CommandResult) CombinedOutput() []byte {
	result := make([]byte, 0, len(r.Stdout)+len(r.Stderr))
	result = append(result, r.Stdout...)
	result = append(result, r.Stderr...)
	return result
}

// Err returns nil on success, otherwise an error carrying the exit code
// and trimmed stderr.
func (r *CommandResult) Err() error {
	if r.Success() {
		return nil
	}
	msg := strings.TrimSpace(string(r.Stderr))
	if msg == "" {
		msg = strings.TrimSpace(string(r.Stdout))
	}
	if msg == "" {
		return fmt.Errorf("exit status %d", r.ExitCode)
	}
	return fmt.Errorf("exit status %d: %s", r.ExitCode, msg)
}

// Connection represents an active connection to a host. A connection may
// be shared by concurrent tasks on the same host.
type Connection interface {
	// Host returns the connected host.
	Host() *fleet.Host

	// Run executes a shell command and returns the result. A non-zero exit
	// is reported in the result, not as an error.
	Run(ctx context.Context, cmd string) (*CommandResult, error)

	// RunWithInput executes a command with stdin input.
	RunWithInput(ctx context.Context, cmd string, stdin io.Reader) (*CommandResult, error)

	// Close closes the connection.
	Close() error
}

// Transport defines the interface for remote execution transports.
type Transport interface {
	// Name returns the transport name (e.g., "ssh", "local").
	Name() string

	// Connect establishes a connection to a host.
	Connect(ctx context.Context, host *fleet.Host) (Connection, error)

	// Ping tests connectivity to a host.
	Ping(ctx context.Context, host *fleet.Host) error
}

// ConnectionPool keeps one connection per host for the duration of a run.
// It is safe for concurrent use.
type ConnectionPool struct {
	transport   Transport
	mu          sync.Mutex
	connections map[fleet.HostID]Connection
}

// NewConnectionPool creates a new connection pool.
func NewConnectionPool(transport Transport) *ConnectionPool {
	return &ConnectionPool{
		transport:   transport,
		connections: make(map[fleet.HostID]Connection),
	}
}

// Transport returns the underlying transport.
func (p *ConnectionPool) Transport() Transport {
	return p.transport
}

// Get returns the connection for host, connecting on first use.
func (p *ConnectionPool) Get(ctx context.Context, host *fleet.Host) (Connection, error) {
	p.mu.Lock()
	if conn, ok := p.connections[host.ID()]; ok {
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.transport.Connect(ctx, host)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.connections[host.ID()]; ok {
		_ = conn.Close()
		return existing, nil
	}
	p.connections[host.ID()] = conn
	return conn, nil
}

// Close closes all connections in the pool.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for id, conn := range p.connections {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	p.connections = make(map[fleet.HostID]Connection)
	return errors.Join(errs...)
}

// Size returns the number of connections in the pool.
func (p *ConnectionPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

// Quote returns s as a single-quoted POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%_-+=:,./", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Sudo wraps cmd so that it runs as root through a non-interactive sudo.
func Sudo(cmd string) string {
	return "sudo -n sh -c " + Quote(cmd)
}
