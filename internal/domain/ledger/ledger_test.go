package ledger

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Ordering
		wantErr bool
	}{
		{"", OrderingNumeric, false},
		{"numeric", OrderingNumeric, false},
		{" Lexicographic ", OrderingLexicographic, false},
		{"random", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOrdering(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackupPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/etc/hosts.bak3", BackupPath("/etc/hosts", 3))
	assert.Equal(t, "core-site.xml.bak0", BackupPath("core-site.xml", 0))

	b := Backup{File: "/opt/hadoop/etc/hadoop/yarn-site.xml", ID: 12}
	assert.Equal(t, "yarn-site.xml.bak12", b.Name())
	assert.Equal(t, "/opt/hadoop/etc/hadoop/yarn-site.xml.bak12", b.Path())
}

func TestParseBackupID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"hosts.bak0", 0, false},
		{"hosts.bak17", 17, false},
		{"hosts.bak", 0, true},
		{"hosts.bak1a", 0, true},
		{"hosts.bak+1", 0, true},
		{"hostsx.bak1", 0, true},
		{"other.bak1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBackupID("hosts", tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBackupName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_NoBackups(t *testing.T) {
	t.Parallel()

	for _, o := range []Ordering{OrderingNumeric, OrderingLexicographic} {
		l := New(o)
		id, ok := l.Latest("/etc/hosts", []string{"hosts", "hostname", "hosts.allow"})
		assert.False(t, ok)
		assert.Equal(t, NoBackup, id)
		assert.Equal(t, 0, l.Next("/etc/hosts", nil))
	}
}

func TestLedger_Next(t *testing.T) {
	t.Parallel()

	l := New(OrderingNumeric)
	names := []string{"core-site.xml", "core-site.xml.bak0", "core-site.xml.bak1", "hdfs-site.xml.bak7"}
	assert.Equal(t, 2, l.Next("core-site.xml", names))
	assert.Equal(t, 8, l.Next("hdfs-site.xml", names))
	assert.Equal(t, 0, l.Next("yarn-site.xml", names))
}

func TestLedger_MonotonicAllocation(t *testing.T) {
	t.Parallel()

	l := New(OrderingNumeric)
	var names []string
	for want := 0; want < 25; want++ {
		id := l.Next("/etc/hosts", names)
		require.Equal(t, want, id)
		names = append(names, BackupName("hosts", id))
	}
}

func TestLedger_LexicographicQuirk(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 11)
	for i := 0; i <= 10; i++ {
		names = append(names, "hosts.bak"+strconv.Itoa(i))
	}

	lex := New(OrderingLexicographic)
	id, ok := lex.Latest("hosts", names)
	require.True(t, ok)
	assert.Equal(t, 9, id, "raw name sort places bak9 after bak10")
	assert.Equal(t, 10, lex.Next("hosts", names))

	num := New(OrderingNumeric)
	id, ok = num.Latest("hosts", names)
	require.True(t, ok)
	assert.Equal(t, 10, id)
	assert.Equal(t, 11, num.Next("hosts", names))
}

func TestLedger_RevertUnwindsOne(t *testing.T) {
	t.Parallel()

	l := New(OrderingNumeric)
	names := []string{"env.sh.bak0", "env.sh.bak1", "env.sh.bak2"}

	id, ok := l.Latest("env.sh", names)
	require.True(t, ok)
	assert.Equal(t, 2, id)

	// Removing the consumed backup exposes the previous one.
	names = names[:2]
	id, ok = l.Latest("env.sh", names)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestLedger_List(t *testing.T) {
	t.Parallel()

	l := New(OrderingLexicographic)
	got := l.List("/etc/hosts", []string{"hosts.bak10", "hosts.bak2", "hosts", "hosts.bakx"})
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)
	assert.Equal(t, 10, got[1].ID)
	assert.Equal(t, "/etc/hosts.bak10", got[1].Path())
}

func TestNew_InvalidOrderingFallsBack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OrderingNumeric, New("bogus").Ordering())
}
