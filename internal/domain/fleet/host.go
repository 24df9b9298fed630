package fleet

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// HostID identifies a host within a cluster. It is the name the host is
// known by in hosts files and monitoring configuration.
type HostID string

// hostIDPattern accepts DNS names and IPv4 addresses.
var hostIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,251}[a-zA-Z0-9])?$`)

// NewHostID creates a new host ID, validating the format.
func NewHostID(id string) (HostID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("host ID cannot be empty")
	}
	if !hostIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid host ID %q: must be a DNS name or IP address", id)
	}
	return HostID(id), nil
}

// String returns the host ID as a string.
func (h HostID) String() string {
	return string(h)
}

// HostStatus represents the last known reachability of a host.
type HostStatus string

const (
	// HostStatusUnknown indicates the host has not been contacted.
	HostStatusUnknown HostStatus = "unknown"
	// HostStatusOnline indicates the last connection succeeded.
	HostStatusOnline HostStatus = "online"
	// HostStatusError indicates the last connection failed.
	HostStatusError HostStatus = "error"
)

// SSHConfig holds SSH connection configuration for a host.
type SSHConfig struct {
	// Hostname is the address dialled; defaults to the host ID.
	Hostname string `yaml:"hostname" toml:"hostname" json:"hostname"`
	// User is the SSH username.
	User string `yaml:"user" toml:"user" json:"user"`
	// Port is the SSH port (default 22).
	Port int `yaml:"port" toml:"port" json:"port"`
	// IdentityFile is the path to the SSH private key.
	IdentityFile string `yaml:"ssh_key" toml:"ssh_key" json:"ssh_key"`
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string `yaml:"known_hosts,omitempty" toml:"known_hosts,omitempty" json:"known_hosts,omitempty"`
	// ConnectTimeout is the connection timeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
}

// Validate validates the SSH configuration.
func (c SSHConfig) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	return nil
}

// WithDefaults returns a copy with default values applied.
func (c SSHConfig) WithDefaults() SSHConfig {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	return c
}

// Merge fills the zero fields of c from defaults.
func (c SSHConfig) Merge(defaults SSHConfig) SSHConfig {
	if c.Hostname == "" {
		c.Hostname = defaults.Hostname
	}
	if c.User == "" {
		c.User = defaults.User
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.IdentityFile == "" {
		c.IdentityFile = defaults.IdentityFile
	}
	if c.KnownHostsFile == "" {
		c.KnownHostsFile = defaults.KnownHostsFile
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	return c
}

// Reachability is the outcome of the last connection attempt.
type Reachability struct {
	Status HostStatus
	// At is when the host last answered.
	At  time.Time
	Err error
}

// Host is a machine of the cluster. Roles are fixed at construction;
// reachability is updated by transports and safe for concurrent use.
type Host struct {
	id    HostID
	ssh   SSHConfig
	roles Roles

	mu    sync.RWMutex
	reach Reachability
}

// NewHost creates a host. An empty SSH hostname defaults to the ID and
// duplicate roles are dropped.
func NewHost(id HostID, ssh SSHConfig, roles ...Role) (*Host, error) {
	if ssh.Hostname == "" {
		ssh.Hostname = string(id)
	}
	ssh = ssh.WithDefaults()
	if err := ssh.Validate(); err != nil {
		return nil, fmt.Errorf("host %s: invalid SSH config: %w", id, err)
	}
	h := &Host{id: id, ssh: ssh, reach: Reachability{Status: HostStatusUnknown}}
	for _, r := range roles {
		if !h.roles.Contains(r) {
			h.roles = append(h.roles, r)
		}
	}
	return h, nil
}

func (h *Host) ID() HostID { return h.id }

func (h *Host) SSH() SSHConfig { return h.ssh }

// HasRole reports whether the host plays r.
func (h *Host) HasRole(r Role) bool { return h.roles.Contains(r) }

// Roles returns a copy of the host's roles.
func (h *Host) Roles() Roles {
	return append(Roles(nil), h.roles...)
}

// Reachability returns the outcome of the last connection attempt.
func (h *Host) Reachability() Reachability {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reach
}

// Status is shorthand for Reachability().Status.
func (h *Host) Status() HostStatus {
	return h.Reachability().Status
}

// MarkOnline records a successful connection.
func (h *Host) MarkOnline() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reach = Reachability{Status: HostStatusOnline, At: time.Now()}
}

// MarkError records a failed connection. The time of the last success
// is kept.
func (h *Host) MarkError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reach.Status = HostStatusError
	h.reach.Err = err
}

// HostSummary is how a host is listed by the CLI.
type HostSummary struct {
	ID       HostID     `json:"id"`
	Hostname string     `json:"hostname"`
	User     string     `json:"user"`
	Port     int        `json:"port"`
	Roles    []string   `json:"roles"`
	Status   HostStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
}

// Summary returns the listing of the host.
func (h *Host) Summary() HostSummary {
	reach := h.Reachability()
	s := HostSummary{
		ID:       h.id,
		Hostname: h.ssh.Hostname,
		User:     h.ssh.User,
		Port:     h.ssh.Port,
		Roles:    h.roles.Strings(),
		Status:   reach.Status,
	}
	if reach.Err != nil {
		s.Error = reach.Err.Error()
	}
	return s
}
