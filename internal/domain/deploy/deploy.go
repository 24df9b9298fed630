// Package deploy builds the task sets that install and configure Hadoop,
// Jenkins and Nagios on a cluster. Every file change goes through the
// mutation engine, so it is backed up first and can be reverted.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
)

// Deployment builds tasks for one cluster file.
type Deployment struct {
	cfg     *cluster.Config
	inv     *fleet.Inventory
	targets []*fleet.Host
	policy  mutation.Policy
	// readLocal reads files of the machine clusterprep runs on.
	readLocal func(path string) ([]byte, error)
}

// Option configures a Deployment.
type Option func(*Deployment)

// WithPolicy selects how managed files are backed up (default: merge).
func WithPolicy(p mutation.Policy) Option {
	return func(d *Deployment) {
		if p != "" {
			d.policy = p
		}
	}
}

// WithTargets names the hosts the tasks will run on. Role hosts written
// into configuration files are then resolved the way the executor picks
// the host of an exclusive task.
func WithTargets(hosts []*fleet.Host) Option {
	return func(d *Deployment) {
		d.targets = hosts
	}
}

// WithLocalReader replaces how local files such as keys and check scripts
// are read (default: os.ReadFile after expanding a leading "~/").
func WithLocalReader(read func(path string) ([]byte, error)) Option {
	return func(d *Deployment) {
		if read != nil {
			d.readLocal = read
		}
	}
}

// New creates a Deployment. inv must be the inventory of cfg.
func New(cfg *cluster.Config, inv *fleet.Inventory, opts ...Option) *Deployment {
	d := &Deployment{cfg: cfg, inv: inv, policy: mutation.PolicyMerge, readLocal: readLocalFile}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the backup policy of file changes.
func (d *Deployment) Policy() mutation.Policy {
	return d.policy
}

func (d *Deployment) orchestrator(hc *execution.HostContext) *mutation.Orchestrator {
	return mutation.NewOrchestrator(hc.FS,
		mutation.WithLedger(d.cfg.Backup.Ledger()),
		mutation.WithLogger(hc.Logger))
}

// hostname returns the name the host playing role is known by. The first
// targeted host with role wins, so configuration names the same host that
// exclusive tasks run on; the inventory is consulted when no target holds
// the role.
func (d *Deployment) hostname(role fleet.Role) (string, bool) {
	h, ok := execution.Owner(d.targets, role)
	if !ok {
		h, ok = d.inv.FirstWithRole(role)
	}
	if !ok {
		return "", false
	}
	return h.SSH().Hostname, true
}

func readLocalFile(p string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		p = home + "/" + rest
	}
	return os.ReadFile(p)
}

// uploadTask writes local content to file after running prepare, then runs
// finish. prepare and finish may be empty.
func uploadTask(id, file string, content []byte, prepare, finish []string, opts ...execution.TaskOption) execution.Task {
	return execution.NewFuncTask(id,
		func(ctx context.Context, hc *execution.HostContext) (string, error) {
			if len(prepare) > 0 {
				if out, err := hc.Exec(ctx, strings.Join(prepare, " && ")); err != nil {
					return out, err
				}
			}
			if err := hc.FS.WriteFile(ctx, file, content); err != nil {
				return "", fmt.Errorf("write %s: %w", file, err)
			}
			if len(finish) > 0 {
				if out, err := hc.Exec(ctx, strings.Join(finish, " && ")); err != nil {
					return out, err
				}
			}
			return fmt.Sprintf("%s: uploaded (%d bytes)", file, len(content)), nil
		}, opts...).
		WithPlan(func(ctx context.Context, hc *execution.HostContext) (string, error) {
			current, exists, err := hc.FS.ReadFile(ctx, file)
			if err != nil {
				return "", err
			}
			switch {
			case !exists:
				return fmt.Sprintf("%s: upload (%d bytes)", file, len(content)), nil
			case string(current) == string(content):
				return fmt.Sprintf("%s: unchanged", file), nil
			default:
				return fmt.Sprintf("%s: replace (%d bytes)", file, len(content)), nil
			}
		})
}

// mutateTask merges assignments into file with m.
func (d *Deployment) mutateTask(id, file string, assignments mutation.Assignments, m mutation.Merger, opts ...execution.TaskOption) execution.Task {
	return execution.NewFuncTask(id,
		func(ctx context.Context, hc *execution.HostContext) (string, error) {
			res, err := d.orchestrator(hc).Mutate(ctx, file, assignments, m, d.policy)
			if err != nil {
				return "", err
			}
			return describeResult(res), nil
		}, opts...).
		WithPlan(func(ctx context.Context, hc *execution.HostContext) (string, error) {
			var (
				changes []mutation.Change
				err     error
			)
			if d.policy == mutation.PolicyClean {
				changes, err = mutation.Diff("", assignments, m)
			} else {
				changes, err = d.orchestrator(hc).Diff(ctx, file, assignments, m)
			}
			if err != nil {
				return "", err
			}
			return describeChanges(file, changes), nil
		})
}

// replaceTask overwrites file with content, which is rendered whole.
func (d *Deployment) replaceTask(id, file, content string, opts ...execution.TaskOption) execution.Task {
	return execution.NewFuncTask(id,
		func(ctx context.Context, hc *execution.HostContext) (string, error) {
			res, err := d.orchestrator(hc).Replace(ctx, file, []byte(content))
			if err != nil {
				return "", err
			}
			return describeResult(res), nil
		}, opts...).
		WithPlan(func(ctx context.Context, hc *execution.HostContext) (string, error) {
			current, exists, err := hc.FS.ReadFile(ctx, file)
			if err != nil {
				return "", err
			}
			switch {
			case !exists:
				return fmt.Sprintf("%s: create (%d lines)", file, strings.Count(content, "\n")), nil
			case string(current) == content:
				return fmt.Sprintf("%s: unchanged", file), nil
			default:
				return fmt.Sprintf("%s: rewrite (%d lines)", file, strings.Count(content, "\n")), nil
			}
		})
}

// revertTask restores the latest backup of every file. A failure on one
// file does not stop the others.
func (d *Deployment) revertTask(id string, files []string, opts ...execution.TaskOption) execution.Task {
	return execution.NewFuncTask(id,
		func(ctx context.Context, hc *execution.HostContext) (string, error) {
			o := d.orchestrator(hc)
			var (
				out  []string
				errs []error
			)
			for _, file := range files {
				res, err := o.Revert(ctx, file)
				switch {
				case err != nil:
					errs = append(errs, err)
				case res.Reverted:
					out = append(out, fmt.Sprintf("%s: restored from %s", file, res.Backup.Name()))
				default:
					out = append(out, fmt.Sprintf("%s: nothing to revert", file))
				}
			}
			return strings.Join(out, "\n"), errors.Join(errs...)
		}, opts...).
		WithPlan(func(ctx context.Context, hc *execution.HostContext) (string, error) {
			o := d.orchestrator(hc)
			out := make([]string, 0, len(files))
			for _, file := range files {
				b, ok, err := o.LatestBackup(ctx, file)
				if err != nil {
					return "", err
				}
				if !ok {
					out = append(out, fmt.Sprintf("%s: nothing to revert", file))
					continue
				}
				out = append(out, fmt.Sprintf("%s: restore from %s", file, b.Name()))
			}
			return strings.Join(out, "\n"), nil
		})
}

// shellTask runs cmds in order and stops at the first failure.
func shellTask(id string, cmds []string, opts ...execution.TaskOption) *execution.CommandTask {
	return execution.NewCommandTask(id, strings.Join(cmds, " && "), opts...)
}

// packagesTask refreshes the package index and installs pkgs.
func (d *Deployment) packagesTask(id string, pkgs []string, opts ...execution.TaskOption) (execution.Task, error) {
	install, err := d.cfg.Packages.InstallCommands(pkgs)
	if err != nil {
		return nil, err
	}
	cmds := make([]string, 0, len(install)+1)
	if d.cfg.Packages.Update != "" {
		cmds = append(cmds, d.cfg.Packages.Update)
	}
	return shellTask(id, append(cmds, install...), opts...), nil
}

func describeResult(res *mutation.Result) string {
	if !res.BackupTaken {
		return res.File + ": nothing to change"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: updated (backup %s)", res.File, res.Backup.Name())
	if res.Created {
		b.WriteString(", created")
	}
	for _, w := range res.Warnings {
		b.WriteString("\n  warning: " + w)
	}
	return b.String()
}

func describeChanges(file string, changes []mutation.Change) string {
	if !mutation.Pending(changes) {
		return file + ": up to date"
	}
	var b strings.Builder
	b.WriteString(file + ":")
	for _, c := range changes {
		switch c.Action {
		case mutation.ActionAdd:
			if c.New == c.Key {
				fmt.Fprintf(&b, "\n  + %s", c.Key)
				continue
			}
			fmt.Fprintf(&b, "\n  + %s = %s", c.Key, c.New)
		case mutation.ActionUpdate:
			fmt.Fprintf(&b, "\n  ~ %s: %s -> %s", c.Key, c.Old, c.New)
		}
	}
	return b.String()
}

// assignments turns name/value pairs into engine assignments.
func assignments(pairs ...string) mutation.Assignments {
	out := make(mutation.Assignments, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, mutation.Assignment{Key: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// exactLines turns lines into EXACT_LINE assignments.
func exactLines(lines ...string) mutation.Assignments {
	out := make(mutation.Assignments, 0, len(lines))
	for _, l := range lines {
		out = append(out, mutation.Assignment{Key: l})
	}
	return out
}
