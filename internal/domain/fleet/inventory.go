package fleet

import (
	"fmt"
	"sync"
)

// Inventory lists the hosts of a cluster in declaration order. Order
// matters: host-exclusive work runs on the first host holding a role.
type Inventory struct {
	mu    sync.RWMutex
	hosts []*Host
	index map[HostID]int
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{index: make(map[HostID]int)}
}

// AddHost appends host. Host IDs are unique.
func (i *Inventory) AddHost(host *Host) error {
	if host == nil {
		return fmt.Errorf("host cannot be nil")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, dup := i.index[host.ID()]; dup {
		return fmt.Errorf("host %q is declared twice", host.ID())
	}
	i.index[host.ID()] = len(i.hosts)
	i.hosts = append(i.hosts, host)
	return nil
}

// Host returns the host with id.
func (i *Inventory) Host(id HostID) (*Host, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, ok := i.index[id]
	if !ok {
		return nil, false
	}
	return i.hosts[n], true
}

// HostCount returns the number of hosts.
func (i *Inventory) HostCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.hosts)
}

// AllHosts returns every host in declaration order.
func (i *Inventory) AllHosts() []*Host {
	return i.filter(func(*Host) bool { return true })
}

// HostsByRole returns the hosts playing role, in declaration order.
func (i *Inventory) HostsByRole(role Role) []*Host {
	return i.filter(func(h *Host) bool { return h.HasRole(role) })
}

// FirstWithRole returns the first declared host playing role.
func (i *Inventory) FirstWithRole(role Role) (*Host, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, h := range i.hosts {
		if h.HasRole(role) {
			return h, true
		}
	}
	return nil, false
}

// Roles returns every role held by some host, in first-seen order.
func (i *Inventory) Roles() Roles {
	var roles Roles
	for _, h := range i.AllHosts() {
		for _, r := range h.Roles() {
			if !roles.Contains(r) {
				roles = append(roles, r)
			}
		}
	}
	return roles
}

func (i *Inventory) filter(keep func(*Host) bool) []*Host {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*Host, 0, len(i.hosts))
	for _, h := range i.hosts {
		if keep(h) {
			out = append(out, h)
		}
	}
	return out
}
