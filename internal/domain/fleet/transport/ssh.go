package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

// SSHTransport reaches hosts over SSH with public key authentication.
// Keys come from the host's identity file, the default identity files and
// the SSH agent, in that order.
type SSHTransport struct {
	// DefaultTimeout bounds dialing and the handshake of hosts without a
	// connect timeout of their own.
	DefaultTimeout time.Duration
	// IdentityFiles are tried for every host; unreadable ones are skipped.
	IdentityFiles []string
	// UseAgent enables the agent listening on SSH_AUTH_SOCK.
	UseAgent bool

	agentOnce sync.Once
	agentConn net.Conn
	agent     agent.ExtendedAgent
}

// NewSSHTransport creates a transport trying ~/.ssh/id_ed25519,
// ~/.ssh/id_rsa and the agent.
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{
		DefaultTimeout: 30 * time.Second,
		IdentityFiles:  []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa"},
		UseAgent:       true,
	}
}

// Name returns "ssh".
func (t *SSHTransport) Name() string {
	return "ssh"
}

// Connect dials host and completes the handshake. The host is marked
// online, or in error with the failure.
func (t *SSHTransport) Connect(ctx context.Context, host *fleet.Host) (Connection, error) {
	client, err := t.connect(ctx, host.SSH())
	if err != nil {
		host.MarkError(err)
		return nil, err
	}
	host.MarkOnline()
	return &SSHConnection{host: host, client: client}, nil
}

func (t *SSHTransport) connect(ctx context.Context, cfg fleet.SSHConfig) (*ssh.Client, error) {
	config, err := t.clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(port))

	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func (t *SSHTransport) clientConfig(cfg fleet.SSHConfig) (*ssh.ClientConfig, error) {
	auth, err := t.authMethods(cfg)
	if err != nil {
		return nil, err
	}
	verify, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = t.DefaultTimeout
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: verify,
		Timeout:         timeout,
	}, nil
}

// Ping connects, runs "true" and disconnects.
func (t *SSHTransport) Ping(ctx context.Context, host *fleet.Host) error {
	conn, err := t.Connect(ctx, host)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	res, err := conn.Run(ctx, "true")
	if err != nil {
		return err
	}
	return res.Err()
}

// Close closes the agent connection.
func (t *SSHTransport) Close() error {
	if t.agentConn == nil {
		return nil
	}
	return t.agentConn.Close()
}

// hostKeyCallback verifies against the configured known_hosts file. Without
// one, host keys are accepted unverified, which is how freshly provisioned
// hosts are reached.
func hostKeyCallback(cfg fleet.SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // verification is opt-in through known_hosts
	}
	cb, err := knownhosts.New(expandHome(cfg.KnownHostsFile))
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsFile, err)
	}
	return cb, nil
}

func (t *SSHTransport) authMethods(cfg fleet.SSHConfig) ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer
	if cfg.IdentityFile != "" {
		s, err := loadPrivateKey(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("load identity file %s: %w", cfg.IdentityFile, err)
		}
		signers = append(signers, s)
	}
	for _, file := range t.IdentityFiles {
		if s, err := loadPrivateKey(file); err == nil {
			signers = append(signers, s)
		}
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if a := t.sshAgent(); a != nil {
		methods = append(methods, ssh.PublicKeysCallback(a.Signers))
	}
	if len(methods) == 0 {
		return nil, errors.New("no authentication methods available: set identity_file or start an SSH agent")
	}
	return methods, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(pem)
}

// sshAgent dials SSH_AUTH_SOCK once per transport.
func (t *SSHTransport) sshAgent() agent.ExtendedAgent {
	if !t.UseAgent {
		return nil
	}
	t.agentOnce.Do(func() {
		socket := os.Getenv("SSH_AUTH_SOCK")
		if socket == "" {
			return
		}
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		t.agentConn = conn
		t.agent = agent.NewClient(conn)
	})
	return t.agent
}

// SSHConnection is a connection of an SSHTransport. Each command runs in
// its own session, so one connection serves concurrent tasks.
type SSHConnection struct {
	host   *fleet.Host
	client *ssh.Client
}

// Host returns the connected host.
func (c *SSHConnection) Host() *fleet.Host {
	return c.host
}

// Run runs cmd in a new session.
func (c *SSHConnection) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	return c.RunWithInput(ctx, cmd, nil)
}

// RunWithInput runs cmd in a new session fed with stdin. When ctx ends
// first, the command is sent SIGTERM and ctx.Err() is returned.
func (c *SSHConnection) RunWithInput(ctx context.Context, cmd string, stdin io.Reader) (*CommandResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", c.host.ID(), err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdin = stdin
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return nil, ctx.Err()
	case runErr = <-done:
	}

	res := &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}
	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		return nil, runErr
	}
	return res, nil
}

// Close closes the SSH client.
func (c *SSHConnection) Close() error {
	return c.client.Close()
}

var _ Transport = (*SSHTransport)(nil)
