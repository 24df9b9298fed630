package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/testutil/mocks"
)

func testHosts(t *testing.T) []*fleet.Host {
	t.Helper()
	inv, err := testConfig(t).Inventory()
	require.NoError(t, err)
	return inv.AllHosts()
}

func TestPrintHostsTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printHostsTable(&buf, testHosts(t)))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[0]), "HOSTNAME")
	assert.Contains(t, string(lines[1]), "master.lan")
	assert.Contains(t, string(lines[1]), "hduser")
	assert.Contains(t, string(lines[1]), "namenode")
	assert.Contains(t, string(lines[3]), "slave2")
}

func TestPrintHostsJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printHostsJSON(&buf, testHosts(t)))

	var got []fleet.HostSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, fleet.HostID("slave1"), got[1].ID)
	assert.Equal(t, []string{"slave"}, got[1].Roles)
	assert.Equal(t, 22, got[1].Port)
}

func TestPingHosts(t *testing.T) {
	t.Parallel()

	t.Run("all reachable", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := pingHosts(context.Background(), &buf, mocks.NewTransport(nil), testHosts(t), time.Second)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Pinging 3 hosts")
		assert.NotContains(t, buf.String(), "FAILED")
	})

	t.Run("one refused", func(t *testing.T) {
		t.Parallel()
		tr := mocks.NewTransport(nil)
		tr.Refuse("slave2", assert.AnError)

		var buf bytes.Buffer
		err := pingHosts(context.Background(), &buf, tr, testHosts(t), time.Second)
		require.EqualError(t, err, "1 of 3 hosts unreachable")
		assert.Contains(t, buf.String(), "FAILED")
		assert.Contains(t, buf.String(), assert.AnError.Error())
	})
}

func TestPrintTopology(t *testing.T) {
	t.Parallel()

	disc := &cluster.Discovery{
		Topology: cluster.NewTopology(
			cluster.Address{Host: "master", Hostname: "master.lan", IP: net.ParseIP("10.0.0.1")},
			cluster.Address{Host: "slave1", Hostname: "slave1", IP: net.ParseIP("10.0.0.2")},
		),
		Failures: []cluster.HostFailure{{Host: "slave2", Err: assert.AnError}},
	}

	var buf bytes.Buffer
	require.NoError(t, printTopology(&buf, disc))

	out := buf.String()
	assert.Contains(t, out, "ADDRESS")
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "1 hosts have no address and are left out:")
	assert.Contains(t, out, "slave2: "+assert.AnError.Error())
}
