package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterBuilder(t *testing.T) {
	t.Parallel()

	got := NewClusterBuilder("lab").
		WithUser("hduser").
		WithInterface("eth1").
		WithHost("master", "master.lan", "master", "namenode").
		WithHost("slave1", "", "slave").
		WithHadoop("/opt/hadoop").
		WithSection("nagios").
		ToYAML()

	AssertYAMLEquals(t, `
name: lab
ssh: {user: hduser}
discovery: {interface: eth1}
hosts:
  - {id: master, hostname: master.lan, roles: [master, namenode]}
  - {id: slave1, roles: [slave]}
hadoop: {prefix: /opt/hadoop}
nagios: {}
`, got)
}

func TestClusterBuilder_Minimal(t *testing.T) {
	t.Parallel()

	got := NewClusterBuilder("one").WithHost("h1", "").ToYAML()
	assert.Equal(t, "name: one\nhosts:\n  - id: h1\n", got)
}
