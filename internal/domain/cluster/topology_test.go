package cluster

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
)

func addr(host, hostname, ip string) Address {
	return Address{Host: fleet.HostID(host), Hostname: hostname, IP: net.ParseIP(ip)}
}

func TestTopology(t *testing.T) {
	t.Parallel()

	topo := NewTopology(
		addr("master", "master.example.com", "10.0.0.1"),
		addr("slave1", "slave1", "10.0.0.2"),
		addr("master", "master", "10.0.0.9"),
	)

	assert.Equal(t, 2, topo.Len())

	ip, ok := topo.IP("master")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip, "first address of a host wins")

	_, ok = topo.IP("slave2")
	assert.False(t, ok)

	assert.Equal(t, mutation.Assignments{
		{Key: "master.example.com", Value: "10.0.0.1"},
		{Key: "slave1", Value: "10.0.0.2"},
	}, topo.HostEntries())
}

func TestTopology_Immutable(t *testing.T) {
	t.Parallel()

	ip := net.ParseIP("10.0.0.1").To4()
	topo := NewTopology(Address{Host: "a", Hostname: "a", IP: ip})
	ip[3] = 99

	got, _ := topo.IP("a")
	assert.Equal(t, "10.0.0.1", got)

	addrs := topo.Addresses()
	addrs[0].IP[3] = 42
	addrs[0].Hostname = "changed"

	got, _ = topo.IP("a")
	assert.Equal(t, "10.0.0.1", got)
	assert.Equal(t, "a", topo.Addresses()[0].Hostname)
}

func TestTopology_Filter(t *testing.T) {
	t.Parallel()

	topo := NewTopology(
		addr("master", "master", "10.0.0.1"),
		addr("slave1", "slave1", "10.0.0.2"),
		addr("slave2", "slave2", "10.0.0.3"),
	)

	slave2, err := fleet.NewHost("slave2", fleet.SSHConfig{Hostname: "slave2"})
	require.NoError(t, err)
	slave1, err := fleet.NewHost("slave1", fleet.SSHConfig{Hostname: "slave1"})
	require.NoError(t, err)
	ghost, err := fleet.NewHost("ghost", fleet.SSHConfig{Hostname: "ghost"})
	require.NoError(t, err)

	got := topo.Filter([]*fleet.Host{slave2, ghost, slave1})
	require.Len(t, got, 2)
	assert.Equal(t, fleet.HostID("slave1"), got[0].Host)
	assert.Equal(t, fleet.HostID("slave2"), got[1].Host)

	assert.Empty(t, NewTopology().Filter([]*fleet.Host{slave1}))
}
