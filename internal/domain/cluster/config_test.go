package cluster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/ledger"
)

const yamlCluster = `
name: yarn
ssh:
  user: hduser
  ssh_key: /home/hduser/.ssh/id_rsa
  connect_timeout: 10s
  sudo: true
backup:
  ordering: lexicographic
execution:
  strategy: rolling
  batch_size: 2
  timeout: 2m
hosts:
  - id: master
    hostname: master.example.com
    roles: [master, namenode, resourcemanager]
  - id: slave1
    port: 2222
    roles: [slave]
  - id: slave2
    roles: [slave]
hadoop:
  version: 2.7.7
  core_site:
    fs.defaultFS: hdfs://master.example.com:9000
    io.file.buffer.size: 131072
  yarn_site:
    yarn.scheduler.minimum-allocation-mb: 128
    yarn.nodemanager.aux-services: mapreduce_shuffle
    yarn.log-aggregation-enable: "true"
`

const tomlCluster = `
name = "yarn"

[ssh]
user = "hduser"
ssh_key = "/home/hduser/.ssh/id_rsa"
connect_timeout = "10s"
sudo = true

[backup]
ordering = "lexicographic"

[execution]
strategy = "rolling"
batch_size = 2
timeout = "2m"

[[hosts]]
id = "master"
hostname = "master.example.com"
roles = ["master", "namenode", "resourcemanager"]

[[hosts]]
id = "slave1"
port = 2222
roles = ["slave"]

[[hosts]]
id = "slave2"
roles = ["slave"]

[hadoop]
version = "2.7.7"
core_site = [
  { name = "fs.defaultFS", value = "hdfs://master.example.com:9000" },
  { name = "io.file.buffer.size", value = "131072" },
]
yarn_site = [
  { name = "yarn.scheduler.minimum-allocation-mb", value = "128" },
  { name = "yarn.nodemanager.aux-services", value = "mapreduce_shuffle" },
  { name = "yarn.log-aggregation-enable", value = "true" },
]
`

func TestParse_YAMLAndTOMLAgree(t *testing.T) {
	t.Parallel()

	fromYAML, err := Parse([]byte(yamlCluster), FormatYAML)
	require.NoError(t, err)
	require.NoError(t, fromYAML.Validate())

	fromTOML, err := Parse([]byte(tomlCluster), FormatTOML)
	require.NoError(t, err)
	require.NoError(t, fromTOML.Validate())

	assert.Equal(t, fromYAML, fromTOML)
}

func TestParse_KeepsPropertyOrder(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(yamlCluster), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"yarn.scheduler.minimum-allocation-mb",
		"yarn.nodemanager.aux-services",
		"yarn.log-aggregation-enable",
	}, cfg.Hadoop.YarnSite.Names())

	v, ok := cfg.Hadoop.CoreSite.Get("io.file.buffer.size")
	assert.True(t, ok)
	assert.Equal(t, "131072", v)
}

func TestParse_PropertiesAsList(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
hosts: [{id: a}]
hadoop:
  core_site:
    - name: fs.defaultFS
      value: hdfs://a:9000
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Properties{{Name: "fs.defaultFS", Value: "hdfs://a:9000"}}, cfg.Hadoop.CoreSite)
}

func TestParse_RejectsUnknownAndMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "hosts: [{id: a}]\nshh: {user: x}\n"},
		{"nested property value", "hosts: [{id: a}]\nhadoop:\n  core_site:\n    a: {b: c}\n"},
		{"bad duration", "ssh:\n  connect_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc), FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("hosts: [{id: node1}]\nhadoop: {}\njenkins: {}\nnagios: {}\n"), FormatYAML)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "root", cfg.SSH.User)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 30*time.Second, cfg.SSH.ConnectTimeout.Std())
	assert.Equal(t, "numeric", cfg.Backup.Ordering)
	assert.Equal(t, "eth0", cfg.Discovery.Interface)

	h := cfg.Hadoop
	assert.Equal(t, "/opt/hadoop-2.2.0", h.Prefix)
	assert.Equal(t, "/opt/hadoop-2.2.0/etc/hadoop", h.ConfDir)
	assert.Equal(t, "/root/.bashrc", h.EnvFile)
	assert.Equal(t, "/etc/hosts", h.HostsFile)
	v, _ := h.Environment.Get("HADOOP_CONF_DIR")
	assert.Equal(t, "$HADOOP_PREFIX/etc/hadoop", v)
	v, _ = h.HDFSSite.Get("dfs.namenode.name.dir")
	assert.Equal(t, "file:///opt/hadoop-2.2.0/hdfs/namenode", v)

	assert.Equal(t, -1, cfg.Jenkins.HTTPPort)
	assert.Equal(t, 8080, cfg.Jenkins.HTTPSPort)
	assert.Equal(t, "/var/lib/jenkins/.ssh", cfg.Jenkins.MasterSSHDir)
	assert.Equal(t, "/home/jenkins/.ssh/authorized_keys", cfg.Jenkins.SlaveAuthorizedKeys())
	assert.Empty(t, cfg.Jenkins.MasterKey)

	n := cfg.Nagios
	assert.Equal(t, []string{"cfg_file=/usr/local/nagios/etc/hosts.cfg", "cfg_file=/usr/local/nagios/etc/services.cfg"}, n.CfgFileLines())
	assert.Equal(t, "nagios", n.User)
	assert.Equal(t, "nagcmd", n.Group)
	assert.Equal(t, 5666, n.NRPEPort)
	assert.Equal(t, "/usr/local/nagios/etc/nrpe.cfg", n.NRPEConfig)
	assert.Equal(t, "/usr/local/nagios/libexec", n.Libexec())
	assert.Equal(t, "/usr/local/nagios/etc/objects/clusterprep-commands.cfg", n.CommandsFile)
	assert.Len(t, n.NRPECommands, 7)
	assert.Equal(t, "service apache2 restart", n.PostInstall[len(n.PostInstall)-1])
}

func TestApplyDefaults_KeepsUserEnvironment(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
ssh: {user: hduser}
hosts: [{id: a}]
hadoop:
  environment:
    JAVA_HOME: /usr/lib/jvm/java-8
    HADOOP_HOME: /srv/hadoop
`), FormatYAML)
	require.NoError(t, err)

	env := cfg.Hadoop.Environment
	assert.Equal(t, "/home/hduser/.bashrc", cfg.Hadoop.EnvFile)
	assert.Equal(t, []string{"JAVA_HOME", "HADOOP_HOME"}, env.Names()[:2])
	v, _ := env.Get("HADOOP_HOME")
	assert.Equal(t, "/srv/hadoop", v)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"no hosts", "ssh: {user: x}\n", "hosts"},
		{"duplicate host", "hosts: [{id: a}, {id: a}]\n", "duplicate host"},
		{"bad role", "hosts: [{id: a, roles: [Name Node]}]\n", "roles"},
		{"bad host id", "hosts: [{id: -a}]\n", "id"},
		{"bad port", "hosts: [{id: a}]\nssh: {port: 70000}\n", "port"},
		{"bad ordering", "hosts: [{id: a}]\nbackup: {ordering: newest}\n", "ordering"},
		{"bad strategy", "hosts: [{id: a}]\nexecution: {strategy: yolo}\n", "strategy"},
		{"relative path", "hosts: [{id: a}]\nhadoop: {hosts_file: etc/hosts}\n", "hosts_file"},
		{"bad template", "hosts: [{id: a}]\ndiscovery: {command: 'ip {{.Interface'}\n", "command"},
		{"empty property name", "hosts: [{id: a}]\nhadoop:\n  core_site:\n    '': x\n", "core_site"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse([]byte(tt.doc), FormatYAML)
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, &UserError{Code: ErrCodeConfigNotFound})

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[ssh\nuser = 1"), 0o644))
	_, err = Load(broken)
	require.ErrorIs(t, err, &UserError{Code: ErrCodeConfigParse})
	assert.Contains(t, err.Error(), "toml")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("hosts: []\n"), 0o644))
	_, err = Load(invalid)
	var ue *UserError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ErrCodeConfigInvalid, ue.Code)
	assert.Equal(t, invalid, ue.Context)

	good := filepath.Join(dir, "cluster.toml")
	require.NoError(t, os.WriteFile(good, []byte(tomlCluster), 0o644))
	cfg, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "yarn", cfg.Name)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(yamlCluster), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatTOML} {
		data, err := cfg.Encode(format)
		require.NoError(t, err, format)

		back, err := Parse(data, format)
		require.NoError(t, err, string(data))
		assert.Equal(t, cfg, back, format)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatTOML, FormatFor("cluster.TOML"))
	assert.Equal(t, FormatYAML, FormatFor("cluster.yml"))
	assert.Equal(t, FormatYAML, FormatFor("cluster"))

	f, err := ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("json")
	assert.Error(t, err)
}

func TestInventory(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(yamlCluster), FormatYAML)
	require.NoError(t, err)

	inv, err := cfg.Inventory()
	require.NoError(t, err)
	require.Equal(t, 3, inv.HostCount())

	hosts := inv.AllHosts()
	assert.Equal(t, fleet.HostID("master"), hosts[0].ID())
	assert.Equal(t, "master.example.com", hosts[0].SSH().Hostname)
	assert.Equal(t, "hduser", hosts[0].SSH().User)
	assert.Equal(t, 22, hosts[0].SSH().Port)
	assert.Equal(t, 10*time.Second, hosts[0].SSH().ConnectTimeout)
	assert.True(t, hosts[0].HasRole(fleet.RoleNameNode))

	assert.Equal(t, "slave1", hosts[1].SSH().Hostname)
	assert.Equal(t, 2222, hosts[1].SSH().Port)
	assert.Equal(t, "/home/hduser/.ssh/id_rsa", hosts[1].SSH().IdentityFile)
}

func TestSectionConversions(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(yamlCluster), FormatYAML)
	require.NoError(t, err)

	ec := cfg.Execution.ExecutorConfig()
	assert.Equal(t, execution.StrategyRolling, ec.Strategy)
	assert.Equal(t, 2, ec.BatchSize)
	assert.Equal(t, 10, ec.MaxParallel)
	assert.Equal(t, 2*time.Minute, ec.Timeout)

	assert.Equal(t, ledger.OrderingLexicographic, cfg.Backup.Ledger().Ordering())
	assert.Equal(t, ledger.OrderingNumeric, BackupConfig{}.Ledger().Ordering())
}

func TestProperties(t *testing.T) {
	t.Parallel()

	p := Properties{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}, {Name: "a", Value: "3"}}
	v, ok := p.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	withC := p.WithDefault("c", "4").WithDefault("a", "ignored")
	assert.Len(t, withC, 4)
	assert.Len(t, p, 3, "WithDefault does not modify the receiver")

	as := p.Assignments()
	assert.Equal(t, []string{"a", "b"}, as.Keys())
	assert.Equal(t, "3", as.Collapse()[0].Value)
}
