package testutil

import (
	"fmt"
	"strings"
)

// TestHost is one host entry of a test cluster file.
type TestHost struct {
	ID       string
	Hostname string
	Roles    []string
}

// ClusterBuilder builds cluster files for tests.
type ClusterBuilder struct {
	name      string
	user      string
	iface     string
	hosts     []TestHost
	sections  []string
	hadoopDir string
}

// NewClusterBuilder creates a builder for a cluster called name.
func NewClusterBuilder(name string) *ClusterBuilder {
	return &ClusterBuilder{name: name}
}

// WithUser sets the SSH user.
func (b *ClusterBuilder) WithUser(user string) *ClusterBuilder {
	b.user = user
	return b
}

// WithInterface sets the interface discovery reads the address of.
func (b *ClusterBuilder) WithInterface(iface string) *ClusterBuilder {
	b.iface = iface
	return b
}

// WithHost adds a host. An empty hostname leaves it to the default.
func (b *ClusterBuilder) WithHost(id, hostname string, roles ...string) *ClusterBuilder {
	b.hosts = append(b.hosts, TestHost{ID: id, Hostname: hostname, Roles: roles})
	return b
}

// WithHadoop adds a hadoop section installed under prefix.
func (b *ClusterBuilder) WithHadoop(prefix string) *ClusterBuilder {
	b.hadoopDir = prefix
	return b
}

// WithSection adds an empty product section, e.g. "nagios".
func (b *ClusterBuilder) WithSection(name string) *ClusterBuilder {
	b.sections = append(b.sections, name)
	return b
}

// ToYAML renders the cluster file.
func (b *ClusterBuilder) ToYAML() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "name: %s\n", b.name)
	if b.user != "" {
		fmt.Fprintf(&sb, "ssh:\n  user: %s\n", b.user)
	}
	if b.iface != "" {
		fmt.Fprintf(&sb, "discovery:\n  interface: %s\n", b.iface)
	}

	sb.WriteString("hosts:\n")
	for _, h := range b.hosts {
		fmt.Fprintf(&sb, "  - id: %s\n", h.ID)
		if h.Hostname != "" {
			fmt.Fprintf(&sb, "    hostname: %s\n", h.Hostname)
		}
		if len(h.Roles) > 0 {
			fmt.Fprintf(&sb, "    roles: [%s]\n", strings.Join(h.Roles, ", "))
		}
	}

	if b.hadoopDir != "" {
		fmt.Fprintf(&sb, "hadoop:\n  prefix: %s\n", b.hadoopDir)
	}
	for _, s := range b.sections {
		fmt.Fprintf(&sb, "%s: {}\n", s)
	}

	return sb.String()
}
