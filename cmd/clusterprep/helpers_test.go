package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/testutil"
)

var testCluster = testutil.NewClusterBuilder("test").
	WithUser("hduser").
	WithInterface("eth1").
	WithHost("master", "master.lan", "master", "namenode", "resourcemanager", "jobhistory").
	WithHost("slave1", "", "slave").
	WithHost("slave2", "", "slave").
	WithHadoop("/opt/hadoop").
	WithSection("nagios").
	ToYAML()

func testConfig(t *testing.T) *cluster.Config {
	t.Helper()
	cfg, err := cluster.Parse([]byte(testCluster), cluster.FormatYAML)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}
