package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
)

func testInventory(t *testing.T) *fleet.Inventory {
	t.Helper()
	inv := fleet.NewInventory()
	add := func(id, hostname string, roles ...fleet.Role) {
		h, err := fleet.NewHost(fleet.HostID(id), fleet.SSHConfig{Hostname: hostname}, roles...)
		require.NoError(t, err)
		require.NoError(t, inv.AddHost(h))
	}
	add("master", "master.lan", fleet.RoleMaster, fleet.RoleNameNode)
	add("slave1", "slave1.lan", fleet.RoleSlave)
	add("slave2", "", fleet.RoleSlave)
	add("slave10", "", fleet.RoleSlave)
	add("monitor", "10.0.0.9", fleet.Role("nagios"))
	return inv
}

func hostIDs(hosts []*fleet.Host) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.ID().String())
	}
	return out
}

func TestParseSelector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		kind    Kind
		negated bool
		wantErr bool
	}{
		{input: "@all", kind: KindAll},
		{input: "*", kind: KindAll},
		{input: "@slave", kind: KindRole},
		{input: "!@master", kind: KindRole, negated: true},
		{input: "slave?", kind: KindGlob},
		{input: "~^slave[0-9]+$", kind: KindRegex},
		{input: "master", kind: KindName},
		{input: " master.lan ", kind: KindName},
		{input: "", wantErr: true},
		{input: "!", wantErr: true},
		{input: "@", wantErr: true},
		{input: "~[", wantErr: true},
		{input: "slave[", wantErr: true},
		{input: "bad host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSelector(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, tt.negated, s.Negated())
		})
	}
}

func TestTarget_Select(t *testing.T) {
	t.Parallel()

	inv := testInventory(t)
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"empty selects all", "", []string{"master", "slave1", "slave2", "slave10", "monitor"}},
		{"role", "@slave", []string{"slave1", "slave2", "slave10"}},
		{"role minus host", "@slave, !slave2", []string{"slave1", "slave10"}},
		{"exclusion only", "!@slave", []string{"master", "monitor"}},
		{"glob", "slave1*", []string{"slave1", "slave10"}},
		{"regex", "~^slave[0-9]$", []string{"slave1", "slave2"}},
		{"hostname", "master.lan", []string{"master"}},
		{"hostname glob", "*.lan", []string{"master", "slave1"}},
		{"address", "10.0.0.9", []string{"monitor"}},
		{"union keeps inventory order", "monitor,@namenode", []string{"master", "monitor"}},
		{"unknown host", "ghost", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target, err := ParseTarget(tt.expr)
			require.NoError(t, err)
			got := hostIDs(target.Select(inv))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTarget_String(t *testing.T) {
	t.Parallel()

	target, err := NewTarget("@slave", "!slave2", "master")
	require.NoError(t, err)
	assert.Equal(t, "@slave,master,!slave2", target.String())

	empty, err := ParseTarget(" , ")
	require.NoError(t, err)
	assert.Equal(t, "@all", empty.String())

	_, err = ParseTarget("@slave,~(")
	assert.Error(t, err)
}
