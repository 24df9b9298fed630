package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

// LocalTransport runs commands on this machine through sh -c. It serves
// single-machine clusters, whose one host is the machine clusterprep runs
// on, and tests.
type LocalTransport struct {
	// Dir is the working directory of every command; empty means the
	// process working directory.
	Dir string
}

// NewLocalTransport creates a local transport.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

// Name returns "local".
func (t *LocalTransport) Name() string {
	return "local"
}

// Connect marks host online and returns a connection to this machine.
func (t *LocalTransport) Connect(ctx context.Context, host *fleet.Host) (Connection, error) {
	if err := ctx.Err(); err != nil {
		host.MarkError(err)
		return nil, err
	}
	host.MarkOnline()
	return &LocalConnection{host: host, dir: t.Dir}, nil
}

// Ping always succeeds.
func (t *LocalTransport) Ping(_ context.Context, host *fleet.Host) error {
	host.MarkOnline()
	return nil
}

// LocalConnection is a connection of a LocalTransport.
type LocalConnection struct {
	host *fleet.Host
	dir  string
}

// Host returns the host.
func (c *LocalConnection) Host() *fleet.Host {
	return c.host
}

// Run runs cmd with sh -c.
func (c *LocalConnection) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	return c.RunWithInput(ctx, cmd, nil)
}

// RunWithInput runs cmd with sh -c, feeding it stdin. A cancelled ctx is
// returned as the error; a non-zero exit is reported in the result.
func (c *LocalConnection) RunWithInput(ctx context.Context, cmd string, stdin io.Reader) (*CommandResult, error) {
	var stdout, stderr bytes.Buffer
	sh := exec.CommandContext(ctx, "sh", "-c", cmd)
	sh.Dir = c.dir
	sh.Stdin = stdin
	sh.Stdout = &stdout
	sh.Stderr = &stderr

	start := time.Now()
	runErr := sh.Run()
	res := &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, runErr
	}
	return res, nil
}

// Close does nothing.
func (c *LocalConnection) Close() error {
	return nil
}

// IsLoopback reports whether hostname names this machine.
func IsLoopback(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// RoutedTransport connects to loopback hosts through a LocalTransport and
// to every other host through Remote.
type RoutedTransport struct {
	Remote Transport
	Local  *LocalTransport
}

// NewRoutedTransport routes non-loopback hosts to remote.
func NewRoutedTransport(remote Transport) *RoutedTransport {
	return &RoutedTransport{Remote: remote, Local: NewLocalTransport()}
}

func (t *RoutedTransport) route(host *fleet.Host) Transport {
	if IsLoopback(host.SSH().Hostname) {
		return t.Local
	}
	return t.Remote
}

// Name returns the name of the remote transport.
func (t *RoutedTransport) Name() string {
	return t.Remote.Name()
}

// Connect connects through the transport serving host.
func (t *RoutedTransport) Connect(ctx context.Context, host *fleet.Host) (Connection, error) {
	return t.route(host).Connect(ctx, host)
}

// Ping pings through the transport serving host.
func (t *RoutedTransport) Ping(ctx context.Context, host *fleet.Host) error {
	return t.route(host).Ping(ctx, host)
}

// Close closes the remote transport when it holds resources.
func (t *RoutedTransport) Close() error {
	if c, ok := t.Remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ Transport = (*LocalTransport)(nil)
	_ Transport = (*RoutedTransport)(nil)
)
