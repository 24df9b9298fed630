package deploy

import (
	"fmt"
	"path"
	"strconv"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/domain/lines"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
)

// RoleJobTracker marks the host mapreduce.jobtracker.address points at.
const RoleJobTracker fleet.Role = "jobtracker"

// mapReduceTestOutput is the HDFS directory the randomwriter job writes.
const mapReduceTestOutput = "clusterprep-randomwriter"

// Hadoop builds the Hadoop task sets.
type Hadoop struct {
	d   *Deployment
	cfg *cluster.HadoopConfig
}

// Hadoop returns the Hadoop task builder, or a *cluster.UserError when the
// cluster file has no hadoop section.
func (d *Deployment) Hadoop() (*Hadoop, error) {
	if d.cfg.Hadoop == nil {
		return nil, cluster.NewSectionMissingError("hadoop")
	}
	return &Hadoop{d: d, cfg: d.cfg.Hadoop}, nil
}

// SiteFile is one Hadoop XML configuration file.
type SiteFile struct {
	Name       string
	Properties cluster.Properties
}

// SiteFiles returns the four site files with the properties derived from
// the host roles added where the cluster file leaves them unset.
func (h *Hadoop) SiteFiles() []SiteFile {
	core := h.cfg.CoreSite
	if nn, ok := h.d.hostname(fleet.RoleNameNode); ok {
		core = core.WithDefault("fs.defaultFS", "hdfs://"+nn+"/")
	}

	yarn := h.cfg.YarnSite
	if rm, ok := h.d.hostname(fleet.RoleResourceManager); ok {
		yarn = yarn.WithDefault("yarn.resourcemanager.hostname", rm)
	}

	mapred := h.cfg.MapredSite
	if jt, ok := h.d.hostname(RoleJobTracker); ok {
		mapred = mapred.WithDefault("mapreduce.jobtracker.address", jt+":"+strconv.Itoa(h.cfg.JobTrackerPort))
	}
	if jh, ok := h.d.hostname(fleet.RoleJobHistory); ok {
		mapred = mapred.WithDefault("mapreduce.jobhistory.address", jh+":"+strconv.Itoa(h.cfg.JobHistoryPort))
	}

	return []SiteFile{
		{Name: "core-site.xml", Properties: core},
		{Name: "hdfs-site.xml", Properties: h.cfg.HDFSSite},
		{Name: "yarn-site.xml", Properties: yarn},
		{Name: "mapred-site.xml", Properties: mapred},
	}
}

func (h *Hadoop) sitePaths() []string {
	files := h.SiteFiles()
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, path.Join(h.cfg.ConfDir, f.Name))
	}
	return out
}

// InstallDeps installs the packages Hadoop needs.
func (h *Hadoop) InstallDeps() ([]execution.Task, error) {
	t, err := h.d.packagesTask("install-deps", h.cfg.Requirements,
		execution.WithDescription("install "+fmt.Sprint(h.cfg.Requirements)))
	if err != nil {
		return nil, err
	}
	return []execution.Task{t}, nil
}

// Install downloads the release archive, unless present, and unpacks it
// next to the prefix.
func (h *Hadoop) Install() ([]execution.Task, error) {
	url, err := cluster.RenderCommand(h.cfg.PackageURL, cluster.HadoopData{Version: h.cfg.Version})
	if err != nil {
		return nil, err
	}
	dir := path.Dir(h.cfg.Prefix)
	archive := path.Join(dir, h.cfg.PackageName()+".tar.gz")

	t := shellTask("install", []string{
		"mkdir -p " + transport.Quote(dir),
		"{ test -f " + transport.Quote(archive) + " || wget -q -O " + transport.Quote(archive) + " " + transport.Quote(url) + "; }",
		"tar --overwrite -xzf " + transport.Quote(archive) + " -C " + transport.Quote(dir),
	}, execution.WithDescription("install "+h.cfg.PackageName()+" into "+dir), execution.WithCritical()).
		WithCheck("test -x " + transport.Quote(path.Join(h.cfg.Prefix, "bin/hadoop")))
	return []execution.Task{t}, nil
}

// Config merges the site properties into the XML files of every host.
func (h *Hadoop) Config() []execution.Task {
	files := h.SiteFiles()
	tasks := make([]execution.Task, 0, len(files))
	for _, f := range files {
		tasks = append(tasks, h.d.mutateTask("config:"+f.Name, path.Join(h.cfg.ConfDir, f.Name),
			f.Properties.Assignments(), mutation.NewPropertyMerger(),
			execution.WithDescription("set "+strconv.Itoa(len(f.Properties))+" properties in "+f.Name)))
	}
	return tasks
}

// ConfigRevert restores the previous version of every site file.
func (h *Hadoop) ConfigRevert() []execution.Task {
	return []execution.Task{h.d.revertTask("config-revert", h.sitePaths(),
		execution.WithDescription("revert the site files"))}
}

// Env exports the Hadoop environment in the shell profile.
func (h *Hadoop) Env() []execution.Task {
	return []execution.Task{h.d.mutateTask("env", h.cfg.EnvFile, h.cfg.Environment.Assignments(),
		mutation.NewLineMerger(lines.KindShellExport),
		execution.WithDescription("export the Hadoop environment in "+h.cfg.EnvFile))}
}

// EnvRevert restores the previous shell profile.
func (h *Hadoop) EnvRevert() []execution.Task {
	return []execution.Task{h.d.revertTask("env-revert", []string{h.cfg.EnvFile},
		execution.WithDescription("revert "+h.cfg.EnvFile))}
}

// Hosts writes one "HOSTNAME IP" entry per host of topo into the hosts file
// of every host. All hosts receive the same snapshot.
func (h *Hadoop) Hosts(topo *cluster.Topology) ([]execution.Task, error) {
	if topo == nil || topo.Len() == 0 {
		return nil, fmt.Errorf("hosts: no host address was discovered")
	}
	return []execution.Task{h.d.mutateTask("hosts", h.cfg.HostsFile, topo.HostEntries(),
		mutation.NewLineMerger(lines.KindHostEntry),
		execution.WithDescription(fmt.Sprintf("add %d cluster hosts to %s", topo.Len(), h.cfg.HostsFile)))}, nil
}

// HostsRevert restores the previous hosts file.
func (h *Hadoop) HostsRevert() []execution.Task {
	return []execution.Task{h.d.revertTask("hosts-revert", []string{h.cfg.HostsFile},
		execution.WithDescription("revert "+h.cfg.HostsFile))}
}

// Format formats HDFS on the namenode. It erases the filesystem, so it
// needs confirmation, and is skipped when the name directory already holds
// a formatted image.
func (h *Hadoop) Format(confirmed bool) ([]execution.Task, error) {
	if !confirmed {
		return nil, cluster.NewConfirmationRequiredError("formatting HDFS")
	}
	t := execution.NewCommandTask("format",
		transport.Quote(path.Join(h.cfg.Prefix, "bin/hdfs"))+" --config "+transport.Quote(h.cfg.ConfDir)+" namenode -format -nonInteractive",
		execution.WithDescription("format HDFS"),
		execution.WithScope(execution.ExclusiveTo(fleet.RoleNameNode)),
		execution.WithCritical()).
		WithCheck("test -d " + transport.Quote(path.Join(h.cfg.NameDir, "current")))
	return []execution.Task{t}, nil
}

type daemon struct {
	script string
	name   string
	scope  execution.Scope
}

var daemons = []daemon{
	{"sbin/hadoop-daemon.sh", "namenode", execution.ExclusiveTo(fleet.RoleNameNode)},
	{"sbin/hadoop-daemon.sh", "datanode", execution.OnRole(fleet.RoleSlave)},
	{"sbin/yarn-daemon.sh", "resourcemanager", execution.ExclusiveTo(fleet.RoleResourceManager)},
	{"sbin/yarn-daemon.sh", "nodemanager", execution.OnRole(fleet.RoleSlave)},
	{"sbin/mr-jobhistory-daemon.sh", "historyserver", execution.ExclusiveTo(fleet.RoleJobHistory)},
}

// Start starts each daemon on the hosts playing its role.
func (h *Hadoop) Start() []execution.Task {
	return h.daemonTasks("start", daemons)
}

// Stop stops the daemons in reverse start order.
func (h *Hadoop) Stop() []execution.Task {
	reversed := make([]daemon, len(daemons))
	for i, dm := range daemons {
		reversed[len(daemons)-1-i] = dm
	}
	return h.daemonTasks("stop", reversed)
}

func (h *Hadoop) daemonTasks(op string, ds []daemon) []execution.Task {
	tasks := make([]execution.Task, 0, len(ds))
	for _, dm := range ds {
		cmd := fmt.Sprintf("%s --config %s %s %s",
			transport.Quote(path.Join(h.cfg.Prefix, dm.script)), transport.Quote(h.cfg.ConfDir), op, dm.name)
		tasks = append(tasks, execution.NewCommandTask(op+":"+dm.name, cmd,
			execution.WithDescription(op+" "+dm.name),
			execution.WithScope(dm.scope)))
	}
	return tasks
}

func (h *Hadoop) hadoopCmd(args string) string {
	return transport.Quote(path.Join(h.cfg.Prefix, "bin/hadoop")) + " --config " + transport.Quote(h.cfg.ConfDir) + " " + args
}

// Test runs the distributed shell on the resourcemanager with one "date"
// container per targeted host.
func (h *Hadoop) Test() []execution.Task {
	containers := len(h.d.targets)
	if containers == 0 {
		containers = len(h.d.inv.AllHosts())
	}
	jar := transport.Quote(path.Join(h.cfg.Prefix, "share/hadoop/yarn/hadoop-yarn-applications-distributedshell-"+h.cfg.Version+".jar"))
	cmd := h.hadoopCmd(fmt.Sprintf(
		"jar %s org.apache.hadoop.yarn.applications.distributedshell.Client --jar %s --shell_command date --num_containers %d --master_memory 1024",
		jar, jar, containers))
	return []execution.Task{execution.NewCommandTask("test", cmd,
		execution.WithDescription(fmt.Sprintf("run the distributed shell on %d containers", containers)),
		execution.WithScope(execution.ExclusiveTo(fleet.RoleResourceManager)))}
}

// TestMapReduce runs the randomwriter example job on the resourcemanager,
// replacing the output of an earlier run.
func (h *Hadoop) TestMapReduce() []execution.Task {
	jar := transport.Quote(path.Join(h.cfg.Prefix, "share/hadoop/mapreduce/hadoop-mapreduce-examples-"+h.cfg.Version+".jar"))
	cmd := shellTask("test-mapreduce", []string{
		h.hadoopCmd("fs -rm -r -f " + mapReduceTestOutput),
		h.hadoopCmd("jar " + jar + " randomwriter " + mapReduceTestOutput),
	}, execution.WithDescription("run the randomwriter job"),
		execution.WithScope(execution.ExclusiveTo(fleet.RoleResourceManager)))
	return []execution.Task{cmd}
}
