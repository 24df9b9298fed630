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
)

const (
	jenkinsPluginDir = "/var/lib/jenkins/plugins"
	jenkinsRestart   = "/etc/init.d/jenkins restart"
)

// Jenkins builds the Jenkins task sets. The master is the first targeted
// host with the master role; slaves are the hosts with the slave role.
type Jenkins struct {
	d   *Deployment
	cfg *cluster.JenkinsConfig
}

// Jenkins returns the Jenkins task builder, or a *cluster.UserError when
// the cluster file has no jenkins section.
func (d *Deployment) Jenkins() (*Jenkins, error) {
	if d.cfg.Jenkins == nil {
		return nil, cluster.NewSectionMissingError("jenkins")
	}
	return &Jenkins{d: d, cfg: d.cfg.Jenkins}, nil
}

func onMaster() execution.TaskOption {
	return execution.WithScope(execution.ExclusiveTo(fleet.RoleMaster))
}

func onSlaves() execution.TaskOption {
	return execution.WithScope(execution.OnRole(fleet.RoleSlave))
}

// Setup installs the master and prepares the slaves to accept its
// connections.
func (j *Jenkins) Setup() ([]execution.Task, error) {
	install, err := j.d.cfg.Packages.InstallCommands(append(append([]string(nil), j.cfg.MasterPackages...), "jenkins"))
	if err != nil {
		return nil, err
	}
	masterCmds := append([]string(nil), j.cfg.RepoSetup...)
	if j.d.cfg.Packages.Update != "" {
		masterCmds = append(masterCmds, j.d.cfg.Packages.Update)
	}
	master := shellTask("master:install", append(masterCmds, install...),
		execution.WithDescription("install the Jenkins master"), onMaster(), execution.WithCritical())

	slavePkgs, err := j.d.packagesTask("slave:packages", j.cfg.SlavePackages,
		execution.WithDescription("install the slave packages"), onSlaves(), execution.WithCritical())
	if err != nil {
		return nil, err
	}

	sshDir := path.Dir(j.cfg.SlaveSSHConfig)

	tasks := []execution.Task{
		master,
		j.d.mutateTask("master:ports", j.cfg.DefaultsFile,
			assignments("HTTP_PORT", strconv.Itoa(j.cfg.HTTPPort), "HTTPS_PORT", strconv.Itoa(j.cfg.HTTPSPort)),
			mutation.NewLineMerger(lines.KindIniAssign),
			execution.WithDescription("set the ports in "+j.cfg.DefaultsFile), onMaster()),
		execution.NewCommandTask("master:restart", jenkinsRestart,
			execution.WithDescription("restart Jenkins"), onMaster()),
	}
	if len(j.cfg.Plugins) > 0 {
		cmds := []string{
			"mkdir -p " + jenkinsPluginDir,
			"chown jenkins " + jenkinsPluginDir,
		}
		for _, p := range j.cfg.Plugins {
			cmds = append(cmds, "wget -q -N -P "+jenkinsPluginDir+" "+transport.Quote(j.cfg.PluginURL+"/"+p+".hpi"))
		}
		tasks = append(tasks, shellTask("master:plugins", cmds,
			execution.WithDescription("install the Jenkins plugins"), onMaster()))
	}

	keys, pub, err := j.masterKeys()
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, keys...)

	tasks = append(tasks,
		slavePkgs,
		execution.NewCommandTask("slave:user", "useradd -m -s /usr/sbin/nologin jenkins",
			execution.WithDescription("create the jenkins user"), onSlaves(), execution.WithCritical()).
			WithCheck("id -u jenkins"),
		shellTask("slave:ssh-dir", []string{
			"mkdir -p " + transport.Quote(sshDir),
			"chown jenkins " + transport.Quote(sshDir),
			"chmod 700 " + transport.Quote(sshDir),
		}, execution.WithDescription("create "+sshDir), onSlaves()),
		j.d.mutateTask("slave:ssh-config", j.cfg.SlaveSSHConfig,
			exactLines("StrictHostKeyChecking no"), mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("accept the master host keys"), onSlaves()),
	)
	if pub == "" {
		return tasks, nil
	}
	authorized := j.cfg.SlaveAuthorizedKeys()
	return append(tasks,
		j.d.mutateTask("slave:authorized-keys", authorized,
			exactLines(pub), mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("allow the master key in "+authorized), onSlaves()),
		shellTask("slave:authorized-keys-owner", []string{
			"chown jenkins " + transport.Quote(authorized),
			"chmod 600 " + transport.Quote(authorized),
		}, execution.WithDescription("restrict "+authorized), onSlaves()),
	), nil
}

// masterKeys reads the master key pair and returns the tasks installing it
// for the jenkins user, plus the public key line the slaves must accept.
// Both are empty when no master key is configured.
func (j *Jenkins) masterKeys() ([]execution.Task, string, error) {
	if j.cfg.MasterKey == "" {
		return nil, "", nil
	}
	private, err := j.d.readLocal(j.cfg.MasterKey)
	if err != nil {
		return nil, "", fmt.Errorf("read master key: %w", err)
	}
	public, err := j.d.readLocal(j.cfg.MasterKey + ".pub")
	if err != nil {
		return nil, "", fmt.Errorf("read master public key: %w", err)
	}
	pub := strings.TrimSpace(string(public))
	if pub == "" || strings.ContainsAny(pub, "\r\n") {
		return nil, "", fmt.Errorf("%s.pub must hold exactly one key", j.cfg.MasterKey)
	}

	dir := transport.Quote(j.cfg.MasterSSHDir)
	privPath := path.Join(j.cfg.MasterSSHDir, "id_rsa")
	pubPath := privPath + ".pub"
	return []execution.Task{
		uploadTask("master:ssh-key", privPath, private,
			[]string{
				"mkdir -p " + dir,
				"chmod 700 " + dir,
				"install -m 600 /dev/null " + transport.Quote(privPath),
			}, nil,
			execution.WithDescription("install the master private key"), onMaster(), execution.WithCritical()),
		uploadTask("master:ssh-pub", pubPath, []byte(pub+"\n"), nil, nil,
			execution.WithDescription("install the master public key"), onMaster()),
		j.d.mutateTask("master:ssh-config", path.Join(j.cfg.MasterSSHDir, "config"),
			exactLines("StrictHostKeyChecking no"), mutation.NewLineMerger(lines.KindExactLine),
			execution.WithDescription("accept the slave host keys"), onMaster()),
		execution.NewCommandTask("master:ssh-owner", "chown -R jenkins "+dir,
			execution.WithDescription("hand "+j.cfg.MasterSSHDir+" to jenkins"), onMaster()),
	}, pub, nil
}

// Revert restores the master defaults file and the slave SSH files.
func (j *Jenkins) Revert() []execution.Task {
	return []execution.Task{
		j.d.revertTask("master:revert", []string{j.cfg.DefaultsFile, path.Join(j.cfg.MasterSSHDir, "config")},
			execution.WithDescription("revert "+j.cfg.DefaultsFile), onMaster()),
		execution.NewCommandTask("master:restart", jenkinsRestart,
			execution.WithDescription("restart Jenkins"), onMaster()),
		j.d.revertTask("slave:revert", []string{j.cfg.SlaveSSHConfig, j.cfg.SlaveAuthorizedKeys()},
			execution.WithDescription("revert the slave SSH files"), onSlaves()),
	}
}
