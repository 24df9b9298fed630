// Package cluster holds the cluster file, the topology discovered from the
// hosts it lists and the helpers that turn both into commands.
package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/ledger"
)

// DefaultFile is the cluster file looked up when none is given.
const DefaultFile = "clusterprep.yaml"

func init() {
	// Validation errors name fields the way the cluster file spells them.
	validation.ErrorTag = "yaml"
}

// Format is the encoding of a cluster file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension; anything but .toml
// is YAML.
func FormatFor(file string) Format {
	if strings.EqualFold(filepath.Ext(file), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want yaml or toml)", s)
	}
}

// Config is a cluster file. Load returns it with defaults applied and
// validated; it is not modified afterwards.
type Config struct {
	Name      string          `yaml:"name,omitempty" toml:"name,omitempty"`
	SSH       SSHConfig       `yaml:"ssh" toml:"ssh"`
	Packages  PackagesConfig  `yaml:"packages" toml:"packages"`
	Backup    BackupConfig    `yaml:"backup" toml:"backup"`
	Execution ExecutionConfig `yaml:"execution" toml:"execution"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Hosts     []HostConfig    `yaml:"hosts" toml:"hosts"`
	Hadoop    *HadoopConfig   `yaml:"hadoop,omitempty" toml:"hadoop,omitempty"`
	Jenkins   *JenkinsConfig  `yaml:"jenkins,omitempty" toml:"jenkins,omitempty"`
	Nagios    *NagiosConfig   `yaml:"nagios,omitempty" toml:"nagios,omitempty"`
}

// SSHConfig holds the connection defaults shared by every host.
type SSHConfig struct {
	User           string   `yaml:"user,omitempty" toml:"user,omitempty"`
	Port           int      `yaml:"port,omitempty" toml:"port,omitempty"`
	IdentityFile   string   `yaml:"ssh_key,omitempty" toml:"ssh_key,omitempty"`
	KnownHostsFile string   `yaml:"known_hosts,omitempty" toml:"known_hosts,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty" toml:"connect_timeout,omitempty"`
	DisableAgent   bool     `yaml:"disable_agent,omitempty" toml:"disable_agent,omitempty"`
	// Sudo runs commands and file access on the hosts as root.
	Sudo bool `yaml:"sudo,omitempty" toml:"sudo,omitempty"`
}

// Validate validates the SSH section.
func (c SSHConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.ConnectTimeout, validation.Min(Duration(0))),
	)
}

// Fleet converts the section to host SSH defaults.
func (c SSHConfig) Fleet() fleet.SSHConfig {
	return fleet.SSHConfig{
		User:           c.User,
		Port:           c.Port,
		IdentityFile:   c.IdentityFile,
		KnownHostsFile: c.KnownHostsFile,
		ConnectTimeout: c.ConnectTimeout.Std(),
	}.WithDefaults()
}

// PackagesConfig holds the package manager commands of the hosts.
type PackagesConfig struct {
	// Install is a template receiving {{.Package}}.
	Install string `yaml:"install,omitempty" toml:"install,omitempty"`
	Update  string `yaml:"update,omitempty" toml:"update,omitempty"`
}

// Validate validates the packages section.
func (c PackagesConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Install, validation.Required, validation.By(templateRule("packages.install"))),
	)
}

// BackupConfig selects how the latest backup of a file is found.
type BackupConfig struct {
	Ordering string `yaml:"ordering,omitempty" toml:"ordering,omitempty"`
}

// Validate validates the backup section.
func (c BackupConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Ordering, validation.In(string(ledger.OrderingNumeric), string(ledger.OrderingLexicographic))),
	)
}

// Ledger returns the backup ledger for the configured ordering.
func (c BackupConfig) Ledger() *ledger.Ledger {
	ordering, err := ledger.ParseOrdering(c.Ordering)
	if err != nil {
		ordering = ledger.OrderingNumeric
	}
	return ledger.New(ordering)
}

// ExecutionConfig tunes the fan-out over hosts.
type ExecutionConfig struct {
	Strategy    string   `yaml:"strategy,omitempty" toml:"strategy,omitempty"`
	MaxParallel int      `yaml:"max_parallel,omitempty" toml:"max_parallel,omitempty"`
	BatchSize   int      `yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	StopOnError bool     `yaml:"stop_on_error,omitempty" toml:"stop_on_error,omitempty"`
}

// Validate validates the execution section.
func (c ExecutionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Strategy, validation.In(
			string(execution.StrategyParallel), string(execution.StrategyRolling), string(execution.StrategyCanary))),
		validation.Field(&c.MaxParallel, validation.Min(0)),
		validation.Field(&c.BatchSize, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(Duration(0))),
	)
}

// ExecutorConfig converts the section for the fleet executor.
func (c ExecutionConfig) ExecutorConfig() execution.ExecutorConfig {
	cfg := execution.DefaultExecutorConfig()
	if s, err := execution.ParseStrategy(c.Strategy); err == nil {
		cfg.Strategy = s
	}
	if c.MaxParallel > 0 {
		cfg.MaxParallel = c.MaxParallel
	}
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout.Std()
	}
	cfg.StopOnError = c.StopOnError
	return cfg
}

// DiscoveryConfig describes how a host's private address is found.
type DiscoveryConfig struct {
	Interface string `yaml:"interface,omitempty" toml:"interface,omitempty"`
	// Command is a template receiving {{.Interface}}; its first output
	// line must be an IP address.
	Command string `yaml:"command,omitempty" toml:"command,omitempty"`
}

// Validate validates the discovery section.
func (c DiscoveryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Interface, validation.Required),
		validation.Field(&c.Command, validation.Required, validation.By(templateRule("discovery.command"))),
	)
}

// HostConfig is one host of the cluster.
type HostConfig struct {
	ID       string   `yaml:"id" toml:"id"`
	Hostname string   `yaml:"hostname,omitempty" toml:"hostname,omitempty"`
	User     string   `yaml:"user,omitempty" toml:"user,omitempty"`
	Port     int      `yaml:"port,omitempty" toml:"port,omitempty"`
	Roles    []string `yaml:"roles,omitempty" toml:"roles,omitempty"`
}

// Validate validates a host entry.
func (c HostConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required, validation.By(func(v interface{}) error {
			_, err := fleet.NewHostID(v.(string))
			return err
		})),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.Roles, validation.Each(validation.By(func(v interface{}) error {
			_, err := fleet.NewRole(v.(string))
			return err
		}))),
	)
}

// HadoopConfig describes a Hadoop (YARN) installation.
type HadoopConfig struct {
	Version      string   `yaml:"version,omitempty" toml:"version,omitempty"`
	PackageURL   string   `yaml:"package_url,omitempty" toml:"package_url,omitempty"`
	Prefix       string   `yaml:"prefix,omitempty" toml:"prefix,omitempty"`
	ConfDir      string   `yaml:"conf_dir,omitempty" toml:"conf_dir,omitempty"`
	NameDir      string   `yaml:"name_dir,omitempty" toml:"name_dir,omitempty"`
	Requirements []string `yaml:"requirements,omitempty" toml:"requirements,omitempty"`
	// EnvFile receives the Environment exports.
	EnvFile     string     `yaml:"env_file,omitempty" toml:"env_file,omitempty"`
	HostsFile   string     `yaml:"hosts_file,omitempty" toml:"hosts_file,omitempty"`
	Environment Properties `yaml:"environment,omitempty" toml:"environment,omitempty"`

	CoreSite   Properties `yaml:"core_site,omitempty" toml:"core_site,omitempty"`
	HDFSSite   Properties `yaml:"hdfs_site,omitempty" toml:"hdfs_site,omitempty"`
	YarnSite   Properties `yaml:"yarn_site,omitempty" toml:"yarn_site,omitempty"`
	MapredSite Properties `yaml:"mapred_site,omitempty" toml:"mapred_site,omitempty"`

	JobTrackerPort int `yaml:"jobtracker_port,omitempty" toml:"jobtracker_port,omitempty"`
	JobHistoryPort int `yaml:"jobhistory_port,omitempty" toml:"jobhistory_port,omitempty"`
}

// Validate validates the hadoop section.
func (c HadoopConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.PackageURL, validation.Required, validation.By(templateRule("hadoop.package_url"))),
		validation.Field(&c.Prefix, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.ConfDir, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.NameDir, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.EnvFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.HostsFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.Environment, validation.By(propertyNames)),
		validation.Field(&c.CoreSite, validation.By(propertyNames)),
		validation.Field(&c.HDFSSite, validation.By(propertyNames)),
		validation.Field(&c.YarnSite, validation.By(propertyNames)),
		validation.Field(&c.MapredSite, validation.By(propertyNames)),
	)
}

// PackageName returns "hadoop-VERSION".
func (c *HadoopConfig) PackageName() string {
	return "hadoop-" + c.Version
}

// JenkinsConfig describes a Jenkins master with SSH slaves.
type JenkinsConfig struct {
	// HTTPPort of -1 disables plain HTTP.
	HTTPPort       int      `yaml:"http_port,omitempty" toml:"http_port,omitempty"`
	HTTPSPort      int      `yaml:"https_port,omitempty" toml:"https_port,omitempty"`
	DefaultsFile   string   `yaml:"defaults_file,omitempty" toml:"defaults_file,omitempty"`
	SlaveSSHConfig string   `yaml:"slave_ssh_config,omitempty" toml:"slave_ssh_config,omitempty"`
	// RepoSetup registers the Jenkins package repository on the master.
	RepoSetup      []string `yaml:"repo_setup,omitempty" toml:"repo_setup,omitempty"`
	MasterPackages []string `yaml:"master_packages,omitempty" toml:"master_packages,omitempty"`
	SlavePackages  []string `yaml:"slave_packages,omitempty" toml:"slave_packages,omitempty"`
	PluginURL      string   `yaml:"plugin_url,omitempty" toml:"plugin_url,omitempty"`
	Plugins        []string `yaml:"plugins,omitempty" toml:"plugins,omitempty"`
	// MasterKey is the local path of the private key the master connects to
	// its slaves with; the public key is read from MasterKey + ".pub".
	// Empty leaves the master keys and the slave authorized_keys alone.
	MasterKey    string `yaml:"master_key,omitempty" toml:"master_key,omitempty"`
	MasterSSHDir string `yaml:"master_ssh_dir,omitempty" toml:"master_ssh_dir,omitempty"`
}

// SlaveAuthorizedKeys returns the authorized_keys file next to the slave
// SSH config.
func (c *JenkinsConfig) SlaveAuthorizedKeys() string {
	return path.Join(path.Dir(c.SlaveSSHConfig), "authorized_keys")
}

// Validate validates the jenkins section.
func (c JenkinsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPPort, validation.Min(-1), validation.Max(65535)),
		validation.Field(&c.HTTPSPort, validation.Min(-1), validation.Max(65535)),
		validation.Field(&c.DefaultsFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.SlaveSSHConfig, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.MasterSSHDir, validation.Required, validation.By(absolutePath)),
	)
}

// NagiosConfig describes a Nagios master monitoring the cluster over NRPE.
type NagiosConfig struct {
	Dir          string `yaml:"dir,omitempty" toml:"dir,omitempty"`
	ConfigFile   string `yaml:"config_file,omitempty" toml:"config_file,omitempty"`
	HostsFile    string `yaml:"hosts_file,omitempty" toml:"hosts_file,omitempty"`
	ServicesFile string `yaml:"services_file,omitempty" toml:"services_file,omitempty"`
	// HostTemplate is the Nagios template each host definition uses.
	HostTemplate string `yaml:"host_template,omitempty" toml:"host_template,omitempty"`
	// Services maps a service description to its NRPE check command.
	Services Properties `yaml:"services,omitempty" toml:"services,omitempty"`
	// ExtraLines are appended to the main config when absent.
	ExtraLines []string `yaml:"extra_lines,omitempty" toml:"extra_lines,omitempty"`

	User  string `yaml:"user,omitempty" toml:"user,omitempty"`
	Group string `yaml:"group,omitempty" toml:"group,omitempty"`
	// HTTPUser and HTTPPassword guard the web interface. No password skips
	// the htpasswd entry.
	HTTPUser     string `yaml:"http_user,omitempty" toml:"http_user,omitempty"`
	HTTPPassword string `yaml:"http_password,omitempty" toml:"http_password,omitempty"`
	// BuildDir is where the source archives are downloaded and built.
	BuildDir      string   `yaml:"build_dir,omitempty" toml:"build_dir,omitempty"`
	PreInstall    []string `yaml:"pre_install,omitempty" toml:"pre_install,omitempty"`
	Dependencies  []string `yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	PostInstall   []string `yaml:"post_install,omitempty" toml:"post_install,omitempty"`
	ApacheConfDir string   `yaml:"apache_conf_dir,omitempty" toml:"apache_conf_dir,omitempty"`
	ApacheService string   `yaml:"apache_service,omitempty" toml:"apache_service,omitempty"`
	MailCommand   string   `yaml:"mail_command,omitempty" toml:"mail_command,omitempty"`
	CoreURL       string   `yaml:"core_url,omitempty" toml:"core_url,omitempty"`
	PluginsURL    string   `yaml:"plugins_url,omitempty" toml:"plugins_url,omitempty"`
	NRPEURL       string   `yaml:"nrpe_url,omitempty" toml:"nrpe_url,omitempty"`
	PNP4NagiosURL string   `yaml:"pnp4nagios_url,omitempty" toml:"pnp4nagios_url,omitempty"`
	PNP4NagiosDir string   `yaml:"pnp4nagios_dir,omitempty" toml:"pnp4nagios_dir,omitempty"`

	NRPEPort   int    `yaml:"nrpe_port,omitempty" toml:"nrpe_port,omitempty"`
	NRPEConfig string `yaml:"nrpe_config,omitempty" toml:"nrpe_config,omitempty"`
	// NRPECommands maps a check command name to the command line the
	// slaves run for it.
	NRPECommands Properties `yaml:"nrpe_commands,omitempty" toml:"nrpe_commands,omitempty"`
	XinetdFile   string     `yaml:"xinetd_file,omitempty" toml:"xinetd_file,omitempty"`
	ServicesDB   string     `yaml:"services_db,omitempty" toml:"services_db,omitempty"`
	// CommandsFile holds the check_nrpe and perfdata command definitions.
	CommandsFile string `yaml:"commands_file,omitempty" toml:"commands_file,omitempty"`
	// Checks are local plugin scripts copied into the slave libexec.
	Checks []string `yaml:"checks,omitempty" toml:"checks,omitempty"`
}

// Validate validates the nagios section.
func (c NagiosConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ConfigFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.HostsFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.ServicesFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.HostTemplate, validation.Required),
		validation.Field(&c.Services, validation.By(propertyNames)),
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.Group, validation.Required),
		validation.Field(&c.BuildDir, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.PNP4NagiosDir, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.NRPEPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.NRPEConfig, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.NRPECommands, validation.By(propertyNames)),
		validation.Field(&c.XinetdFile, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.ServicesDB, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.CommandsFile, validation.Required, validation.By(absolutePath)),
	)
}

// CfgFileLines returns the cfg_file= entries the main config must carry.
func (c *NagiosConfig) CfgFileLines() []string {
	return []string{"cfg_file=" + c.HostsFile, "cfg_file=" + c.ServicesFile}
}

// Libexec returns the plugin directory.
func (c *NagiosConfig) Libexec() string {
	return path.Join(c.Dir, "libexec")
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SSH),
		validation.Field(&c.Packages),
		validation.Field(&c.Backup),
		validation.Field(&c.Execution),
		validation.Field(&c.Discovery),
		validation.Field(&c.Hosts, validation.Required),
		validation.Field(&c.Hadoop),
		validation.Field(&c.Jenkins),
		validation.Field(&c.Nagios),
	); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		if seen[h.ID] {
			return fmt.Errorf("hosts: duplicate host %q", h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.SSH.User == "" {
		c.SSH.User = "root"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = Duration(30 * time.Second)
	}
	if c.Packages.Install == "" {
		c.Packages.Install = "apt-get install -y {{.Package}}"
	}
	if c.Packages.Update == "" {
		c.Packages.Update = "apt-get update"
	}
	if c.Backup.Ordering == "" {
		c.Backup.Ordering = string(ledger.OrderingNumeric)
	}
	if c.Execution.Strategy == "" {
		c.Execution.Strategy = string(execution.StrategyParallel)
	}
	if c.Discovery.Interface == "" {
		c.Discovery.Interface = "eth0"
	}
	if c.Discovery.Command == "" {
		c.Discovery.Command = "ip -4 -o addr show dev {{quote .Interface}} | awk '{print $4}' | cut -d/ -f1 | head -n 1"
	}
	if c.Hadoop != nil {
		c.Hadoop.applyDefaults(c.SSH.User)
	}
	if c.Jenkins != nil {
		c.Jenkins.applyDefaults()
	}
	if c.Nagios != nil {
		c.Nagios.applyDefaults()
	}
}

func (c *HadoopConfig) applyDefaults(user string) {
	if c.Version == "" {
		c.Version = "2.2.0"
	}
	if c.PackageURL == "" {
		c.PackageURL = "https://archive.apache.org/dist/hadoop/common/hadoop-{{.Version}}/hadoop-{{.Version}}.tar.gz"
	}
	if c.Prefix == "" {
		c.Prefix = "/opt/" + c.PackageName()
	}
	if c.ConfDir == "" {
		c.ConfDir = path.Join(c.Prefix, "etc/hadoop")
	}
	if c.NameDir == "" {
		c.NameDir = path.Join(c.Prefix, "hdfs/namenode")
	}
	if len(c.Requirements) == 0 {
		c.Requirements = []string{"wget", "openjdk-8-jre-headless"}
	}
	if c.EnvFile == "" {
		home := "/home/" + user
		if user == "root" {
			home = "/root"
		}
		c.EnvFile = path.Join(home, ".bashrc")
	}
	if c.HostsFile == "" {
		c.HostsFile = "/etc/hosts"
	}
	if c.JobTrackerPort == 0 {
		c.JobTrackerPort = 8021
	}
	if c.JobHistoryPort == 0 {
		c.JobHistoryPort = 10020
	}

	env := c.Environment.WithDefault("HADOOP_PREFIX", c.Prefix)
	for _, name := range []string{"HADOOP_HOME", "HADOOP_COMMON_HOME", "HADOOP_HDFS_HOME", "HADOOP_MAPRED_HOME", "HADOOP_YARN_HOME"} {
		env = env.WithDefault(name, "$HADOOP_PREFIX")
	}
	c.Environment = env.WithDefault("HADOOP_CONF_DIR", "$HADOOP_PREFIX/etc/hadoop")

	c.HDFSSite = c.HDFSSite.
		WithDefault("dfs.datanode.data.dir", "file://"+path.Join(c.Prefix, "hdfs/datanode")).
		WithDefault("dfs.namenode.name.dir", "file://"+c.NameDir)
}

func (c *JenkinsConfig) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = -1
	}
	if c.HTTPSPort == 0 {
		c.HTTPSPort = 8080
	}
	if c.DefaultsFile == "" {
		c.DefaultsFile = "/etc/default/jenkins"
	}
	if c.SlaveSSHConfig == "" {
		c.SlaveSSHConfig = "/home/jenkins/.ssh/config"
	}
	if len(c.RepoSetup) == 0 {
		c.RepoSetup = []string{
			"wget -q -O - https://pkg.jenkins.io/debian/jenkins.io.key | apt-key add -",
			"echo 'deb https://pkg.jenkins.io/debian binary/' > /etc/apt/sources.list.d/jenkins.list",
		}
	}
	if len(c.MasterPackages) == 0 {
		c.MasterPackages = []string{"openjdk-8-jre-headless", "git"}
	}
	if len(c.SlavePackages) == 0 {
		c.SlavePackages = []string{"openjdk-8-jre-headless", "git", "ant"}
	}
	if c.PluginURL == "" {
		c.PluginURL = "https://updates.jenkins.io/latest"
	}
	if c.MasterSSHDir == "" {
		c.MasterSSHDir = "/var/lib/jenkins/.ssh"
	}
}

func (c *NagiosConfig) applyDefaults() {
	if c.Dir == "" {
		c.Dir = "/usr/local/nagios"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = path.Join(c.Dir, "etc/nagios.cfg")
	}
	if c.HostsFile == "" {
		c.HostsFile = path.Join(c.Dir, "etc/hosts.cfg")
	}
	if c.ServicesFile == "" {
		c.ServicesFile = path.Join(c.Dir, "etc/services.cfg")
	}
	if c.HostTemplate == "" {
		c.HostTemplate = "linux-box"
	}
	if len(c.Services) == 0 {
		c.Services = Properties{
			{Name: "Load", Value: "check_load"},
			{Name: "Disk IO", Value: "check_io"},
			{Name: "Network", Value: "check_net"},
			{Name: "CPU", Value: "check_cpu"},
			{Name: "Memory", Value: "check_mem"},
			{Name: "Processes", Value: "check_procs"},
		}
	}
	if c.User == "" {
		c.User = "nagios"
	}
	if c.Group == "" {
		c.Group = "nagcmd"
	}
	if c.HTTPUser == "" {
		c.HTTPUser = "nagiosadmin"
	}
	if c.BuildDir == "" {
		c.BuildDir = "/usr/local/src"
	}
	if len(c.Dependencies) == 0 {
		c.Dependencies = []string{
			"wget", "build-essential", "apache2", "apache2-utils", "php-gd", "libgd-dev",
			"libapache2-mod-php", "xinetd", "sysstat", "rrdtool", "librrds-perl", "libssl-dev",
		}
	}
	if len(c.PreInstall) == 0 {
		c.PreInstall = []string{
			"wget -O - http://cpanmin.us | perl - --sudo App::cpanminus",
			"cpanm Sys::Statistics::Linux",
		}
	}
	if c.ApacheService == "" {
		c.ApacheService = "apache2"
	}
	if len(c.PostInstall) == 0 {
		c.PostInstall = []string{"a2enmod rewrite", "a2enmod cgi", "service " + c.ApacheService + " restart"}
	}
	if c.ApacheConfDir == "" {
		c.ApacheConfDir = "/etc/apache2/conf.d"
	}
	if c.MailCommand == "" {
		c.MailCommand = "/usr/bin/sendmail"
	}
	if c.CoreURL == "" {
		c.CoreURL = "http://liquidtelecom.dl.sourceforge.net/project/nagios/nagios-4.x/nagios-4.0.8/nagios-4.0.8.tar.gz"
	}
	if c.PluginsURL == "" {
		c.PluginsURL = "http://nagios-plugins.org/download/nagios-plugins-2.0.3.tar.gz"
	}
	if c.NRPEURL == "" {
		c.NRPEURL = "http://liquidtelecom.dl.sourceforge.net/project/nagios/nrpe-2.x/nrpe-2.15/nrpe-2.15.tar.gz"
	}
	if c.PNP4NagiosURL == "" {
		c.PNP4NagiosURL = "http://liquidtelecom.dl.sourceforge.net/project/pnp4nagios/PNP-0.6/pnp4nagios-0.6.25.tar.gz"
	}
	if c.PNP4NagiosDir == "" {
		c.PNP4NagiosDir = "/usr/local/pnp4nagios"
	}
	if c.NRPEPort == 0 {
		c.NRPEPort = 5666
	}
	if c.NRPEConfig == "" {
		c.NRPEConfig = path.Join(c.Dir, "etc/nrpe.cfg")
	}
	if len(c.NRPECommands) == 0 {
		stats := path.Join(c.Dir, "libexec/check_linux_stats.pl")
		c.NRPECommands = Properties{
			{Name: "check_load", Value: stats + " -L -w 10,8,5 -c 20,18,15"},
			{Name: "check_io", Value: stats + " -I -w 2000,600 -c 3000,800 -p sda"},
			{Name: "check_net", Value: stats + " -N -w 1000000 -c 1500000 -p eth0"},
			{Name: "check_cpu", Value: stats + " -C -w 90 -c 100 -s 5"},
			{Name: "check_socket", Value: stats + " -S -w 1000 -c 2000"},
			{Name: "check_mem", Value: stats + " -M -w 95,95 -c 100,100"},
			{Name: "check_procs", Value: stats + " -P -w 1000 -c 2000"},
		}
	}
	if c.XinetdFile == "" {
		c.XinetdFile = "/etc/xinetd.d/nrpe"
	}
	if c.ServicesDB == "" {
		c.ServicesDB = "/etc/services"
	}
	if c.CommandsFile == "" {
		c.CommandsFile = path.Join(c.Dir, "etc/objects/clusterprep-commands.cfg")
	}
}

// Inventory builds the fleet inventory in declaration order.
func (c *Config) Inventory() (*fleet.Inventory, error) {
	inv := fleet.NewInventory()
	defaults := c.SSH.Fleet()

	for _, hc := range c.Hosts {
		id, err := fleet.NewHostID(hc.ID)
		if err != nil {
			return nil, err
		}
		roles, err := fleet.NewRoles(hc.Roles...)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hc.ID, err)
		}
		ssh := fleet.SSHConfig{Hostname: hc.Hostname, User: hc.User, Port: hc.Port}.Merge(defaults)
		if ssh.Hostname == "" {
			ssh.Hostname = hc.ID
		}
		host, err := fleet.NewHost(id, ssh, roles...)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hc.ID, err)
		}
		if err := inv.AddHost(host); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Parse decodes, defaults and validates a cluster file.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Load reads the cluster file at file. Failures are *UserError.
func Load(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewConfigNotFoundError(file)
		}
		return nil, fmt.Errorf("read cluster file: %w", err)
	}

	format := FormatFor(file)
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, NewConfigParseError(file, format, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigInvalidError(file, err)
	}
	return cfg, nil
}

// Encode writes the configuration in format.
func (c *Config) Encode(format Format) ([]byte, error) {
	if format == FormatTOML {
		return toml.Marshal(c)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func absolutePath(v interface{}) error {
	p, _ := v.(string)
	if p != "" && !path.IsAbs(p) {
		return errors.New("must be an absolute path")
	}
	return nil
}

func propertyNames(v interface{}) error {
	props, _ := v.(Properties)
	for i, p := range props {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("entry %d has an empty name", i)
		}
	}
	return nil
}

func templateRule(name string) func(interface{}) error {
	return func(v interface{}) error {
		s, _ := v.(string)
		if _, err := parseTemplate(name, s); err != nil {
			return err
		}
		return nil
	}
}
