package cluster

import (
	"net"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
)

// Address is the private address discovered for one host.
type Address struct {
	Host     fleet.HostID `yaml:"host" json:"host"`
	Hostname string       `yaml:"hostname" json:"hostname"`
	IP       net.IP       `yaml:"ip" json:"ip"`
}

// Topology maps the hosts of a cluster to their private addresses. It is
// built once, before any host is written to, and never changes; every host
// receives the same snapshot.
type Topology struct {
	entries []Address
	index   map[fleet.HostID]int
}

// NewTopology builds a topology. Entries keep their order; a repeated host
// keeps its first address.
func NewTopology(entries ...Address) *Topology {
	t := &Topology{index: make(map[fleet.HostID]int, len(entries))}
	for _, e := range entries {
		if _, dup := t.index[e.Host]; dup {
			continue
		}
		e.IP = append(net.IP(nil), e.IP...)
		t.index[e.Host] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t
}

// Len returns the number of hosts with an address.
func (t *Topology) Len() int {
	return len(t.entries)
}

// Addresses returns a copy of the entries in order.
func (t *Topology) Addresses() []Address {
	out := make([]Address, len(t.entries))
	for i, e := range t.entries {
		e.IP = append(net.IP(nil), e.IP...)
		out[i] = e
	}
	return out
}

// IP returns the address of host.
func (t *Topology) IP(host fleet.HostID) (string, bool) {
	i, ok := t.index[host]
	if !ok {
		return "", false
	}
	return t.entries[i].IP.String(), true
}

// HostEntries returns one hostname to IP assignment per host, for the
// hosts file.
func (t *Topology) HostEntries() mutation.Assignments {
	out := make(mutation.Assignments, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, mutation.Assignment{Key: e.Hostname, Value: e.IP.String()})
	}
	return out
}

// Filter returns the entries of the given hosts, in topology order.
func (t *Topology) Filter(hosts []*fleet.Host) []Address {
	want := make(map[fleet.HostID]bool, len(hosts))
	for _, h := range hosts {
		want[h.ID()] = true
	}
	var out []Address
	for _, e := range t.Addresses() {
		if want[e.Host] {
			out = append(out, e)
		}
	}
	return out
}
