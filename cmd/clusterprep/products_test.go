package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/deploy"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
	"github.com/felixgeelhaar/clusterprep/internal/testutil/mocks"
)

func action(t *testing.T, product, name string) (deploy.Product, deploy.Action) {
	t.Helper()
	p, ok := deploy.FindProduct(product)
	require.True(t, ok)
	a, ok := p.Action(name)
	require.True(t, ok)
	return p, a
}

var addresses = map[fleet.HostID]string{
	"master": "10.0.0.1",
	"slave1": "10.0.0.2",
	"slave2": "10.0.0.3",
}

// clusterHandler answers discovery with the addresses above and fails
// commands containing any of failing.
func clusterHandler(failing ...string) mocks.Handler {
	return func(host fleet.HostID, cmd string) (*transport.CommandResult, error) {
		if strings.HasPrefix(cmd, "ip -4") {
			return mocks.Output(addresses[host] + "\n"), nil
		}
		for _, f := range failing {
			if strings.Contains(cmd, f) {
				return mocks.Exit(1, "failed"), nil
			}
		}
		return mocks.Output(""), nil
	}
}

func TestRunAction_RunsOnSelectedHosts(t *testing.T) {
	t.Parallel()

	tr := mocks.NewTransport(clusterHandler())
	p, a := action(t, "hadoop", "start")

	var out bytes.Buffer
	err := runAction(context.Background(), strings.NewReader(""), &out, testConfig(t), p, a,
		actionOptions{Hosts: "@slave"}, tr, execution.WithRunID("run-1"))
	require.NoError(t, err)

	assert.Empty(t, tr.Commands("master"))
	assert.Equal(t, []string{
		"/opt/hadoop/sbin/hadoop-daemon.sh --config /opt/hadoop/etc/hadoop start datanode",
		"/opt/hadoop/sbin/yarn-daemon.sh --config /opt/hadoop/etc/hadoop start nodemanager",
	}, tr.Commands("slave2"))
	assert.Contains(t, out.String(), "hadoop start on 2 hosts (strategy: parallel)")
	assert.Contains(t, out.String(), "2 hosts:")
	assert.Contains(t, out.String(), "run run-1")
}

func TestRunAction_UnknownSelector(t *testing.T) {
	t.Parallel()

	p, a := action(t, "hadoop", "start")
	err := runAction(context.Background(), strings.NewReader(""), &bytes.Buffer{}, testConfig(t), p, a,
		actionOptions{Hosts: "@jobtracker"}, mocks.NewTransport(nil))

	require.ErrorIs(t, err, &cluster.UserError{Code: cluster.ErrCodeHostUnknown})
	assert.Contains(t, formatError(err), "master, slave1, slave2")
}

func TestRunAction_DestructiveNeedsConfirmation(t *testing.T) {
	t.Parallel()

	p, a := action(t, "hadoop", "format")

	t.Run("declined", func(t *testing.T) {
		t.Parallel()
		tr := mocks.NewTransport(clusterHandler("test -d"))
		var out bytes.Buffer
		err := runAction(context.Background(), strings.NewReader("n\n"), &out, testConfig(t), p, a,
			actionOptions{Hosts: "@all"}, tr)

		require.ErrorIs(t, err, &cluster.UserError{Code: cluster.ErrCodeConfirmationRequired})
		assert.Contains(t, out.String(), "cannot be undone. Continue? [y/N]")
		assert.Empty(t, tr.Commands("master"))
	})

	t.Run("confirmed at the prompt", func(t *testing.T) {
		t.Parallel()
		tr := mocks.NewTransport(clusterHandler("test -d"))
		err := runAction(context.Background(), strings.NewReader("y\n"), &bytes.Buffer{}, testConfig(t), p, a,
			actionOptions{Hosts: "@all"}, tr)

		require.NoError(t, err)
		assert.Contains(t, tr.Commands("master"), "/opt/hadoop/bin/hdfs --config /opt/hadoop/etc/hadoop namenode -format -nonInteractive")
		assert.Empty(t, tr.Commands("slave1"))
	})

	t.Run("yes flag skips the prompt", func(t *testing.T) {
		t.Parallel()
		tr := mocks.NewTransport(clusterHandler("test -d"))
		var out bytes.Buffer
		err := runAction(context.Background(), strings.NewReader(""), &out, testConfig(t), p, a,
			actionOptions{Hosts: "@all", Yes: true}, tr)

		require.NoError(t, err)
		assert.NotContains(t, out.String(), "[y/N]")
		assert.Len(t, tr.Commands("master"), 2)
	})
}

func TestRunAction_DiscoveryFeedsEveryHost(t *testing.T) {
	t.Parallel()

	tr := mocks.NewTransport(clusterHandler())
	fss := map[fleet.HostID]*mocks.RemoteFS{
		"master": mocks.NewRemoteFS(),
		"slave1": mocks.NewRemoteFS(),
		"slave2": mocks.NewRemoteFS(),
	}
	for _, fs := range fss {
		fs.AddFile("/etc/hosts", "127.0.0.1 localhost\n")
	}
	p, a := action(t, "hadoop", "hosts")

	var out bytes.Buffer
	err := runAction(context.Background(), strings.NewReader(""), &out, testConfig(t), p, a,
		actionOptions{Hosts: "slave1"}, tr,
		execution.WithFileSystem(func(h *fleet.Host, _ transport.Connection) ports.RemoteFS { return fss[h.ID()] }))
	require.NoError(t, err)

	got, _ := fss["slave1"].Content("/etc/hosts")
	assert.Equal(t, "127.0.0.1 localhost\nmaster.lan 10.0.0.1\nslave1 10.0.0.2\nslave2 10.0.0.3\n", got)

	untouched, _ := fss["slave2"].Content("/etc/hosts")
	assert.Equal(t, "127.0.0.1 localhost\n", untouched, "only selected hosts are written")
	assert.Equal(t, []string{"ip -4 -o addr show dev eth1 | awk '{print $4}' | cut -d/ -f1 | head -n 1"}, tr.Commands("slave2"))
}

func TestRunAction_DryRun(t *testing.T) {
	t.Parallel()

	tr := mocks.NewTransport(clusterHandler())
	fs := mocks.NewRemoteFS()
	fs.AddFile("/usr/local/nagios/etc/nagios.cfg", "log_file=/usr/local/nagios/var/nagios.log\n")
	p, a := action(t, "nagios", "configure")

	var out bytes.Buffer
	err := runAction(context.Background(), strings.NewReader(""), &out, testConfig(t), p, a,
		actionOptions{Hosts: "@all", DryRun: true}, tr,
		execution.WithFileSystem(func(*fleet.Host, transport.Connection) ports.RemoteFS { return fs }))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[DRY-RUN]")
	assert.Contains(t, out.String(), "+ cfg_file=/usr/local/nagios/etc/hosts.cfg")
	assert.Contains(t, out.String(), "/usr/local/nagios/etc/hosts.cfg: create")
	assert.Zero(t, fs.CountCalls(mocks.OpWrite))
	assert.Zero(t, fs.CountCalls(mocks.OpCopy))
}

func TestRunAction_ReportsFailedHosts(t *testing.T) {
	t.Parallel()

	tr := mocks.NewTransport(clusterHandler("nodemanager"))
	tr.Refuse("slave2", assert.AnError)
	p, a := action(t, "hadoop", "start")

	var out bytes.Buffer
	err := runAction(context.Background(), strings.NewReader(""), &out, testConfig(t), p, a,
		actionOptions{Hosts: "@all"}, tr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "hadoop start failed on 2 of 3 hosts: slave1, slave2")
	assert.Contains(t, out.String(), "start:nodemanager")
	assert.Contains(t, out.String(), "connection failed")
	assert.Len(t, tr.Commands("master"), 3)
}

func TestSelectHosts(t *testing.T) {
	t.Parallel()

	inv, err := testConfig(t).Inventory()
	require.NoError(t, err)

	tests := []struct {
		selector string
		want     []fleet.HostID
	}{
		{"@all", []fleet.HostID{"master", "slave1", "slave2"}},
		{"", []fleet.HostID{"master", "slave1", "slave2"}},
		{"@slave", []fleet.HostID{"slave1", "slave2"}},
		{"slave*,!slave2", []fleet.HostID{"slave1"}},
		{"!master", []fleet.HostID{"slave1", "slave2"}},
		{"master, slave2", []fleet.HostID{"master", "slave2"}},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			t.Parallel()
			hosts, err := selectHosts(inv, tt.selector)
			require.NoError(t, err)
			ids := make([]fleet.HostID, len(hosts))
			for i, h := range hosts {
				ids[i] = h.ID()
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
