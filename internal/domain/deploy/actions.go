package deploy

import (
	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
)

// Input is what an action needs beyond the cluster file.
type Input struct {
	// Topology is set for actions with Discover.
	Topology *cluster.Topology
	// Confirmed is set when the operator approved a destructive action.
	Confirmed bool
}

// Action is one operation of a product, e.g. "hadoop config".
type Action struct {
	Name  string
	Short string
	// Discover actions need the host addresses before they are built.
	Discover bool
	// Destructive actions need confirmation.
	Destructive bool
	// Revert actions restore backups instead of writing new ones.
	Revert bool
	Build  func(d *Deployment, in Input) ([]execution.Task, error)
}

// Product groups the actions of one piece of software.
type Product struct {
	Name    string
	Short   string
	Actions []Action
}

// Action returns the action called name.
func (p Product) Action(name string) (Action, bool) {
	for _, a := range p.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

func hadoop(build func(h *Hadoop, in Input) ([]execution.Task, error)) func(*Deployment, Input) ([]execution.Task, error) {
	return func(d *Deployment, in Input) ([]execution.Task, error) {
		h, err := d.Hadoop()
		if err != nil {
			return nil, err
		}
		return build(h, in)
	}
}

func jenkins(build func(j *Jenkins, in Input) ([]execution.Task, error)) func(*Deployment, Input) ([]execution.Task, error) {
	return func(d *Deployment, in Input) ([]execution.Task, error) {
		j, err := d.Jenkins()
		if err != nil {
			return nil, err
		}
		return build(j, in)
	}
}

func nagios(build func(n *Nagios, in Input) ([]execution.Task, error)) func(*Deployment, Input) ([]execution.Task, error) {
	return func(d *Deployment, in Input) ([]execution.Task, error) {
		n, err := d.Nagios()
		if err != nil {
			return nil, err
		}
		return build(n, in)
	}
}

// Products lists everything clusterprep can deploy.
var Products = []Product{
	{
		Name:  "hadoop",
		Short: "Install, configure and run Hadoop (HDFS and YARN)",
		Actions: []Action{
			{Name: "install-deps", Short: "Install the packages Hadoop needs",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.InstallDeps() })},
			{Name: "install", Short: "Download and unpack the Hadoop release",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Install() })},
			{Name: "config", Short: "Merge the site properties into the XML configuration",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Config(), nil })},
			{Name: "config-revert", Short: "Restore the previous XML configuration", Revert: true,
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.ConfigRevert(), nil })},
			{Name: "env", Short: "Export the Hadoop environment in the shell profile",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Env(), nil })},
			{Name: "env-revert", Short: "Restore the previous shell profile", Revert: true,
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.EnvRevert(), nil })},
			{Name: "hosts", Short: "Add every cluster host to the hosts file of every host", Discover: true,
				Build: hadoop(func(h *Hadoop, in Input) ([]execution.Task, error) { return h.Hosts(in.Topology) })},
			{Name: "hosts-revert", Short: "Restore the previous hosts file", Revert: true,
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.HostsRevert(), nil })},
			{Name: "format", Short: "Format HDFS on the namenode", Destructive: true,
				Build: hadoop(func(h *Hadoop, in Input) ([]execution.Task, error) { return h.Format(in.Confirmed) })},
			{Name: "start", Short: "Start the Hadoop daemons",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Start(), nil })},
			{Name: "stop", Short: "Stop the Hadoop daemons",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Stop(), nil })},
			{Name: "test", Short: "Run a distributed shell job on YARN",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.Test(), nil })},
			{Name: "test-mapreduce", Short: "Run the randomwriter MapReduce job",
				Build: hadoop(func(h *Hadoop, _ Input) ([]execution.Task, error) { return h.TestMapReduce(), nil })},
		},
	},
	{
		Name:  "jenkins",
		Short: "Set up a Jenkins master with SSH slaves",
		Actions: []Action{
			{Name: "setup", Short: "Install the master and prepare the slaves",
				Build: jenkins(func(j *Jenkins, _ Input) ([]execution.Task, error) { return j.Setup() })},
			{Name: "revert", Short: "Restore the previous Jenkins configuration", Revert: true,
				Build: jenkins(func(j *Jenkins, _ Input) ([]execution.Task, error) { return j.Revert(), nil })},
		},
	},
	{
		Name:  "nagios",
		Short: "Install and configure Nagios to monitor the cluster",
		Actions: []Action{
			{Name: "install", Short: "Build Nagios, its plugins, NRPE and PNP4Nagios from source",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.Install() })},
			{Name: "configure-nrpe", Short: "Let the slaves answer NRPE checks from the master",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.ConfigureNRPE() })},
			{Name: "install-checks", Short: "Copy the check scripts to the slaves",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.InstallChecks() })},
			{Name: "add-commands", Short: "Define the check_nrpe and perfdata commands",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.AddCommands() })},
			{Name: "configure", Short: "Define every cluster host and its services", Discover: true,
				Build: nagios(func(n *Nagios, in Input) ([]execution.Task, error) { return n.Configure(in.Topology) })},
			{Name: "revert", Short: "Restore the previous Nagios configuration", Revert: true,
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.Revert(), nil })},
			{Name: "start", Short: "Start Nagios, npcd and the slave xinetd",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.Start(), nil })},
			{Name: "stop", Short: "Stop Nagios and npcd",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.Stop(), nil })},
			{Name: "restart", Short: "Restart Nagios, npcd and the slave xinetd",
				Build: nagios(func(n *Nagios, _ Input) ([]execution.Task, error) { return n.Restart(), nil })},
		},
	},
}

// FindProduct returns the product called name.
func FindProduct(name string) (Product, bool) {
	for _, p := range Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}
