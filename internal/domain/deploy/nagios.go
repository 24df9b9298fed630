package deploy

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/domain/lines"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
	"github.com/felixgeelhaar/clusterprep/internal/templates"
)

const nagiosRestart = "service nagios restart"

// Nagios builds the Nagios task sets. The server runs on the master, the
// first targeted host with the master role; the slaves run NRPE under
// xinetd.
type Nagios struct {
	d   *Deployment
	cfg *cluster.NagiosConfig
}

// Nagios returns the Nagios task builder, or a *cluster.UserError when the
// cluster file has no nagios section.
func (d *Deployment) Nagios() (*Nagios, error) {
	if d.cfg.Nagios == nil {
		return nil, cluster.NewSectionMissingError("nagios")
	}
	return &Nagios{d: d, cfg: d.cfg.Nagios}, nil
}

// Data returns the template data monitoring every host of topo.
func (n *Nagios) Data(topo *cluster.Topology) templates.NagiosData {
	data := templates.NagiosData{Use: n.cfg.HostTemplate}
	for _, a := range topo.Addresses() {
		data.Hosts = append(data.Hosts, templates.NagiosHost{Name: a.Hostname, Address: a.IP.String()})
	}
	for _, s := range n.cfg.Services {
		data.Services = append(data.Services, templates.NagiosService{Description: s.Name, Command: s.Value})
	}
	return data
}

// Configure registers the object files in the main config and rewrites
// them from topo.
func (n *Nagios) Configure(topo *cluster.Topology) ([]execution.Task, error) {
	if topo == nil || topo.Len() == 0 {
		return nil, fmt.Errorf("nagios: no host address was discovered")
	}
	data := n.Data(topo)
	hosts, err := templates.GenerateNagiosHosts(data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", n.cfg.HostsFile, err)
	}
	services, err := templates.GenerateNagiosServices(data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", n.cfg.ServicesFile, err)
	}

	cfgLines := append(n.cfg.CfgFileLines(), n.cfg.ExtraLines...)
	return []execution.Task{
		n.d.mutateTask("cfg-files", n.cfg.ConfigFile, exactLines(cfgLines...),
			mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("register the object files in "+n.cfg.ConfigFile), onMaster(), execution.WithCritical()),
		n.d.replaceTask("hosts-cfg", n.cfg.HostsFile, hosts,
			execution.WithDescription(fmt.Sprintf("define %d hosts", len(data.Hosts))), onMaster()),
		n.d.replaceTask("services-cfg", n.cfg.ServicesFile, services,
			execution.WithDescription(fmt.Sprintf("define %d services per host", len(data.Services))), onMaster()),
		execution.NewCommandTask("restart", nagiosRestart,
			execution.WithDescription("restart Nagios"), onMaster()),
	}, nil
}

// Install builds Nagios from source: the server, its plugins and
// PNP4Nagios on the master, the plugins and the NRPE daemon on the slaves.
// Every build is skipped when its result is already in place.
func (n *Nagios) Install() ([]execution.Task, error) {
	deps, err := n.depsTask()
	if err != nil {
		return nil, err
	}
	user := transport.Quote(n.cfg.User)
	group := transport.Quote(n.cfg.Group)
	libexec := n.cfg.Libexec()
	ssl := "./configure --enable-ssl --with-ssl=/usr/bin/openssl --with-ssl-lib=/usr/lib/x86_64-linux-gnu"

	core := []string{
		"./configure --with-nagios-group=" + user + " --with-command-group=" + group +
			" --with-mail=" + transport.Quote(n.cfg.MailCommand) + " --with-httpd-conf=" + transport.Quote(n.cfg.ApacheConfDir),
		"make all",
		"make install",
		"make install-init",
		"make install-config",
		"make install-commandmode",
		"make install-webconf",
		"cp -R contrib/eventhandlers/ " + transport.Quote(libexec),
		"chown -R " + user + ":" + user + " " + transport.Quote(path.Join(libexec, "eventhandlers")),
		transport.Quote(path.Join(n.cfg.Dir, "bin/nagios")) + " -v " + transport.Quote(n.cfg.ConfigFile),
		"service " + n.cfg.ApacheService + " restart",
	}
	if n.cfg.HTTPPassword != "" {
		core = append(core, "htpasswd -cb "+transport.Quote(path.Join(n.cfg.Dir, "etc/htpasswd.users"))+" "+
			transport.Quote(n.cfg.HTTPUser)+" "+transport.Quote(n.cfg.HTTPPassword))
	}
	core = append(core, "ln -sf /etc/init.d/nagios /etc/rcS.d/S99nagios")

	tasks := []execution.Task{
		deps,
		execution.NewCommandTask("user",
			"useradd "+user+" && { getent group "+group+" || groupadd "+group+"; } && usermod -a -G "+group+" "+user,
			execution.WithDescription("create the "+n.cfg.User+" user"), execution.WithCritical()).
			WithCheck("id -u " + user),
		n.buildTask("core", n.cfg.CoreURL, core, "test -x "+transport.Quote(path.Join(n.cfg.Dir, "bin/nagios")),
			execution.WithDescription("build the Nagios server"), onMaster(), execution.WithCritical()),
		n.buildTask("plugins", n.cfg.PluginsURL, []string{
			"./configure --with-nagios-group=" + user + " --with-nagios-user=" + user,
			"make",
			"make install",
		}, "test -x "+transport.Quote(path.Join(libexec, "check_load")),
			execution.WithDescription("build the Nagios plugins")),
		n.buildTask("nrpe:master", n.cfg.NRPEURL, []string{ssl, "make all", "make install-plugin"},
			"test -x "+transport.Quote(path.Join(libexec, "check_nrpe")),
			execution.WithDescription("build the check_nrpe plugin"), onMaster()),
		n.buildTask("nrpe:slave", n.cfg.NRPEURL, []string{
			ssl, "make all", "make install-plugin", "make install-daemon", "make install-daemon-config",
		}, "test -x "+transport.Quote(path.Join(n.cfg.Dir, "bin/nrpe")),
			execution.WithDescription("build the NRPE daemon"), onSlaves()),
		n.buildTask("pnp4nagios", n.cfg.PNP4NagiosURL, []string{
			"./configure --with-nagios-user=" + user + " --with-nagios-group=" + user,
			"make all",
			"make fullinstall",
			"service " + n.cfg.ApacheService + " restart",
		}, "test -d "+transport.Quote(path.Join(n.cfg.PNP4NagiosDir, "var")),
			execution.WithDescription("build PNP4Nagios"), onMaster()),
		n.d.mutateTask("perfdata", n.cfg.ConfigFile, n.perfdata(),
			mutation.NewLineMerger(lines.KindIniAssign),
			execution.WithDescription("hand performance data to PNP4Nagios"), onMaster()),
	}
	return append(tasks, n.serviceTasks("restart", true)...), nil
}

func (n *Nagios) depsTask() (execution.Task, error) {
	install, err := n.d.cfg.Packages.InstallCommands(n.cfg.Dependencies)
	if err != nil {
		return nil, err
	}
	cmds := append([]string(nil), n.cfg.PreInstall...)
	if n.d.cfg.Packages.Update != "" {
		cmds = append(cmds, n.d.cfg.Packages.Update)
	}
	cmds = append(append(cmds, install...), n.cfg.PostInstall...)
	return shellTask("deps", cmds, execution.WithDescription("install the Nagios build dependencies"), execution.WithCritical()), nil
}

// buildTask downloads the source archive at url into the build directory
// unless present, unpacks it and runs steps inside the unpacked tree. check
// succeeding skips the task.
func (n *Nagios) buildTask(id, url string, steps []string, check string, opts ...execution.TaskOption) execution.Task {
	pkg := strings.TrimSuffix(path.Base(url), ".tar.gz")
	archive := path.Join(n.cfg.BuildDir, pkg+".tar.gz")
	cmds := []string{
		"mkdir -p " + transport.Quote(n.cfg.BuildDir),
		"{ test -f " + transport.Quote(archive) + " || wget -q -O " + transport.Quote(archive) + " " + transport.Quote(url) + "; }",
		"tar --overwrite -xzf " + transport.Quote(archive) + " -C " + transport.Quote(n.cfg.BuildDir),
		"cd " + transport.Quote(path.Join(n.cfg.BuildDir, pkg)),
	}
	return shellTask(id, append(cmds, steps...), opts...).WithCheck(check)
}

func (n *Nagios) perfdata() mutation.Assignments {
	spool := n.cfg.PNP4NagiosDir
	return assignments(
		"process_performance_data", "1",
		"service_perfdata_file", path.Join(spool, "var/service-perfdata"),
		"service_perfdata_file_template", `DATATYPE::SERVICEPERFDATA\tTIMET::$TIMET$\tHOSTNAME::$HOSTNAME$\tSERVICEDESC::$SERVICEDESC$\tSERVICEPERFDATA::$SERVICEPERFDATA$\tSERVICECHECKCOMMAND::$SERVICECHECKCOMMAND$\tHOSTSTATE::$HOSTSTATE$\tHOSTSTATETYPE::$HOSTSTATETYPE$\tSERVICESTATE::$SERVICESTATE$\tSERVICESTATETYPE::$SERVICESTATETYPE$`,
		"service_perfdata_file_mode", "a",
		"service_perfdata_file_processing_interval", "15",
		"service_perfdata_file_processing_command", "process-service-perfdata-file",
		"host_perfdata_file", path.Join(spool, "var/host-perfdata"),
		"host_perfdata_file_template", `DATATYPE::HOSTPERFDATA\tTIMET::$TIMET$\tHOSTNAME::$HOSTNAME$\tHOSTPERFDATA::$HOSTPERFDATA$\tHOSTCHECKCOMMAND::$HOSTCHECKCOMMAND$\tHOSTSTATE::$HOSTSTATE$\tHOSTSTATETYPE::$HOSTSTATETYPE$`,
		"host_perfdata_file_mode", "a",
		"host_perfdata_file_processing_interval", "15",
		"host_perfdata_file_processing_command", "process-host-perfdata-file",
	)
}

// ConfigureNRPE configures the NRPE daemon of every slave to answer the
// master, registers it with xinetd and installs the check scripts.
func (n *Nagios) ConfigureNRPE() ([]execution.Task, error) {
	master, ok := n.d.hostname(fleet.RoleMaster)
	if !ok {
		return nil, fmt.Errorf("nagios: no host has the %s role", fleet.RoleMaster)
	}
	xinetd, err := templates.GenerateXinetd(templates.XinetdData{
		Port:     n.cfg.NRPEPort,
		User:     n.cfg.User,
		Group:    n.cfg.User,
		Server:   path.Join(n.cfg.Dir, "bin/nrpe"),
		Config:   n.cfg.NRPEConfig,
		OnlyFrom: []string{"127.0.0.1", master},
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", n.cfg.XinetdFile, err)
	}

	settings := assignments(
		"server_port", strconv.Itoa(n.cfg.NRPEPort),
		"nrpe_user", n.cfg.User,
		"nrpe_group", n.cfg.User,
		"allowed_hosts", "127.0.0.1,"+master,
		"dont_blame_nrpe", "0",
	)
	for _, c := range n.cfg.NRPECommands {
		settings = append(settings, mutation.Assignment{Key: "command[" + c.Name + "]", Value: c.Value})
	}

	tasks := []execution.Task{
		n.d.mutateTask("nrpe-cfg", n.cfg.NRPEConfig, settings,
			mutation.NewLineMerger(lines.KindIniAssign),
			execution.WithDescription(fmt.Sprintf("define %d NRPE commands", len(n.cfg.NRPECommands))), onSlaves(), execution.WithCritical()),
		execution.NewCommandTask("nrpe-cfg-owner", "chown "+transport.Quote(n.cfg.User)+" "+transport.Quote(n.cfg.NRPEConfig),
			execution.WithDescription("hand "+n.cfg.NRPEConfig+" to "+n.cfg.User), onSlaves()),
		n.d.replaceTask("xinetd", n.cfg.XinetdFile, xinetd,
			execution.WithDescription("run NRPE under xinetd"), onSlaves()),
		n.d.mutateTask("services-db", n.cfg.ServicesDB,
			exactLines("nrpe\t"+strconv.Itoa(n.cfg.NRPEPort)+"/tcp\tNRPE"),
			mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("name the NRPE port in "+n.cfg.ServicesDB), onSlaves()),
	}
	checks, err := n.checkTasks()
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, checks...)
	return append(tasks, n.serviceCommand("restart", "xinetd", onSlaves())), nil
}

// InstallChecks copies the check scripts into the plugin directory of every
// slave.
func (n *Nagios) InstallChecks() ([]execution.Task, error) {
	if len(n.cfg.Checks) == 0 {
		return nil, cluster.NewUserError(cluster.ErrCodeConfigInvalid, "nagios: no checks are configured")
	}
	return n.checkTasks()
}

func (n *Nagios) checkTasks() ([]execution.Task, error) {
	tasks := make([]execution.Task, 0, len(n.cfg.Checks))
	for _, local := range n.cfg.Checks {
		content, err := n.d.readLocal(local)
		if err != nil {
			return nil, fmt.Errorf("read check %s: %w", local, err)
		}
		name := path.Base(local)
		remote := transport.Quote(path.Join(n.cfg.Libexec(), name))
		tasks = append(tasks, uploadTask("check:"+name, path.Join(n.cfg.Libexec(), name), content, nil,
			[]string{"chown " + transport.Quote(n.cfg.User) + " " + remote, "chmod 755 " + remote},
			execution.WithDescription("install the "+name+" check"), onSlaves()))
	}
	return tasks, nil
}

// AddCommands defines the check_nrpe and perfdata commands in their own
// object file and registers it in the main config.
func (n *Nagios) AddCommands() ([]execution.Task, error) {
	commands, err := templates.GenerateNagiosCommands(templates.NagiosCommandsData{PNPDir: n.cfg.PNP4NagiosDir})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", n.cfg.CommandsFile, err)
	}
	return []execution.Task{
		n.d.replaceTask("commands-cfg", n.cfg.CommandsFile, commands,
			execution.WithDescription("define the NRPE and perfdata commands"), onMaster(), execution.WithCritical()),
		n.d.mutateTask("cfg-commands", n.cfg.ConfigFile, exactLines("cfg_file="+n.cfg.CommandsFile),
			mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("register "+n.cfg.CommandsFile), onMaster()),
		execution.NewCommandTask("commands-owner", "chown "+transport.Quote(n.cfg.User)+" "+transport.Quote(n.cfg.CommandsFile),
			execution.WithDescription("hand "+n.cfg.CommandsFile+" to "+n.cfg.User), onMaster()),
		execution.NewCommandTask("restart", nagiosRestart,
			execution.WithDescription("restart Nagios"), onMaster()),
	}, nil
}

// Start starts xinetd on the slaves, Nagios and npcd on the master.
func (n *Nagios) Start() []execution.Task {
	return n.serviceTasks("start", true)
}

// Stop stops Nagios and npcd. The slaves keep answering NRPE.
func (n *Nagios) Stop() []execution.Task {
	return n.serviceTasks("stop", false)
}

// Restart restarts xinetd on the slaves, Nagios and npcd on the master.
func (n *Nagios) Restart() []execution.Task {
	return n.serviceTasks("restart", true)
}

func (n *Nagios) serviceTasks(op string, slaves bool) []execution.Task {
	var tasks []execution.Task
	if slaves {
		tasks = append(tasks, n.serviceCommand(op, "xinetd", onSlaves()))
	}
	return append(tasks,
		n.serviceCommand(op, "nagios", onMaster()),
		n.serviceCommand(op, "npcd", onMaster()))
}

func (n *Nagios) serviceCommand(op, service string, scope execution.TaskOption) execution.Task {
	return execution.NewCommandTask(op+":"+service, "service "+service+" "+op,
		execution.WithDescription(op+" "+service), scope)
}

// Revert restores the previous main config and object files on the
// master and the NRPE files on the slaves.
func (n *Nagios) Revert() []execution.Task {
	return []execution.Task{
		n.d.revertTask("revert", []string{n.cfg.ConfigFile, n.cfg.HostsFile, n.cfg.ServicesFile, n.cfg.CommandsFile},
			execution.WithDescription("revert the Nagios configuration"), onMaster()),
		execution.NewCommandTask("restart", nagiosRestart,
			execution.WithDescription("restart Nagios"), onMaster()),
		n.d.revertTask("revert:nrpe", []string{n.cfg.NRPEConfig, n.cfg.XinetdFile, n.cfg.ServicesDB},
			execution.WithDescription("revert the NRPE configuration"), onSlaves()),
		n.serviceCommand("restart", "xinetd", onSlaves()),
	}
}
