package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
)

// Handler scripts the result of a command run on a host. A nil Handler
// makes every command succeed with no output.
type Handler func(host fleet.HostID, cmd string) (*transport.CommandResult, error)

// Output is a successful result printing stdout.
func Output(stdout string) *transport.CommandResult {
	return &transport.CommandResult{Stdout: []byte(stdout)}
}

// Exit is a failed result with the given exit code and stderr.
func Exit(code int, stderr string) *transport.CommandResult {
	return &transport.CommandResult{ExitCode: code, Stderr: []byte(stderr)}
}

// Transport is a thread-safe scripted transport.Transport. It records the
// commands run on each host.
type Transport struct {
	mu       sync.Mutex
	handler  Handler
	refused  map[fleet.HostID]error
	commands map[fleet.HostID][]string
	connects int
}

// NewTransport creates a transport answering commands with handler.
func NewTransport(handler Handler) *Transport {
	return &Transport{
		handler:  handler,
		refused:  make(map[fleet.HostID]error),
		commands: make(map[fleet.HostID][]string),
	}
}

// Refuse makes connections to host fail with err.
func (t *Transport) Refuse(host fleet.HostID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refused[host] = err
}

// Commands returns the commands run on host, in order.
func (t *Transport) Commands(host fleet.HostID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.commands[host]))
	copy(out, t.commands[host])
	return out
}

// Connects returns how many connections were attempted.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Name returns "mock".
func (t *Transport) Name() string {
	return "mock"
}

// Connect connects unless the host is refused.
func (t *Transport) Connect(ctx context.Context, host *fleet.Host) (transport.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.connects++
	err := t.refused[host.ID()]
	t.mu.Unlock()
	if err != nil {
		host.MarkError(err)
		return nil, err
	}
	host.MarkOnline()
	return &Connection{t: t, host: host}, nil
}

// Ping fails for refused hosts.
func (t *Transport) Ping(_ context.Context, host *fleet.Host) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refused[host.ID()]
}

// Connection is a connection of a mock Transport.
type Connection struct {
	t    *Transport
	host *fleet.Host
}

// Host returns the host.
func (c *Connection) Host() *fleet.Host {
	return c.host
}

// Run records cmd and answers it with the handler.
func (c *Connection) Run(ctx context.Context, cmd string) (*transport.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.t.mu.Lock()
	c.t.commands[c.host.ID()] = append(c.t.commands[c.host.ID()], cmd)
	handler := c.t.handler
	c.t.mu.Unlock()

	if handler == nil {
		return &transport.CommandResult{}, nil
	}
	return handler(c.host.ID(), cmd)
}

// RunWithInput drains stdin and behaves like Run.
func (c *Connection) RunWithInput(ctx context.Context, cmd string, stdin io.Reader) (*transport.CommandResult, error) {
	if stdin != nil {
		if _, err := io.Copy(io.Discard, stdin); err != nil {
			return nil, err
		}
	}
	return c.Run(ctx, cmd)
}

// Close does nothing.
func (c *Connection) Close() error {
	return nil
}

var (
	_ transport.Transport  = (*Transport)(nil)
	_ transport.Connection = (*Connection)(nil)
)
