package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/deploy"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/targeting"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// actionOptions are the flags every product action takes.
type actionOptions struct {
	Hosts  string
	DryRun bool
	Clean  bool
	Yes    bool
}

func init() {
	for _, p := range deploy.Products {
		rootCmd.AddCommand(newProductCmd(p))
	}
}

func newProductCmd(p deploy.Product) *cobra.Command {
	cmd := &cobra.Command{
		Use:   p.Name,
		Short: p.Short,
	}
	for _, a := range p.Actions {
		cmd.AddCommand(newActionCmd(p, a))
	}
	return cmd
}

func newActionCmd(p deploy.Product, a deploy.Action) *cobra.Command {
	opts := &actionOptions{}
	cmd := &cobra.Command{
		Use:   a.Name,
		Short: a.Short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCluster()
			if err != nil {
				return err
			}
			ctx, _, err := commandContext(cmd)
			if err != nil {
				return err
			}
			tr := newTransport(cfg, 0)
			defer func() { _ = tr.Close() }()
			return runAction(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cfg, p, a, *opts, tr)
		},
	}

	cmd.Flags().StringVar(&opts.Hosts, "hosts", "@all", "hosts to run on (@all, @role, glob, ~regex, !exclude; comma separated)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would change without changing anything")
	if !a.Revert {
		cmd.Flags().BoolVar(&opts.Clean, "clean", false, "move each file into its backup and start from an empty file")
	}
	if a.Destructive {
		cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "do not ask for confirmation")
	}
	return cmd
}

// runAction builds the tasks of action a and runs them on the selected
// hosts. Extra executor options are used by tests.
func runAction(ctx context.Context, in io.Reader, out io.Writer, cfg *cluster.Config, p deploy.Product, a deploy.Action,
	opts actionOptions, tr transport.Transport, extra ...execution.ExecutorOption) error {
	inv, err := cfg.Inventory()
	if err != nil {
		return err
	}
	hosts, err := selectHosts(inv, opts.Hosts)
	if err != nil {
		return err
	}

	confirmed := opts.Yes || opts.DryRun
	if a.Destructive && !confirmed {
		confirmed = confirm(in, out, fmt.Sprintf("%s %s on %d hosts cannot be undone. Continue?", p.Name, a.Name, len(hosts)))
	}

	logger := ports.LoggerFromContext(ctx)
	execCfg := cfg.Execution.ExecutorConfig()
	execCfg.DryRun = opts.DryRun
	execCfg.Sudo = cfg.SSH.Sudo

	execOpts := []execution.ExecutorOption{}
	if logger != nil {
		execOpts = append(execOpts, execution.WithExecutorLogger(logger))
	}
	executor := execution.NewFleetExecutor(tr, execCfg, append(execOpts, extra...)...)
	defer func() { _ = executor.Close() }()

	input := deploy.Input{Confirmed: confirmed}
	if a.Discover {
		// Every host is resolved so each one learns about all the others.
		disc, err := cluster.Discover(ctx, executor.Pool(), inv.AllHosts(), cfg.Discovery, execCfg.MaxParallel)
		if err != nil {
			return err
		}
		printFailures(out, disc.Failures)
		input.Topology = disc.Topology
	}

	d := deploy.New(cfg, inv, deploy.WithPolicy(mutation.PolicyFor(opts.Clean)), deploy.WithTargets(hosts))
	tasks, err := a.Build(d, input)
	if err != nil {
		return err
	}

	if opts.DryRun {
		_, _ = fmt.Fprintf(out, "%s %s %s on %d hosts\n\n", styles.Warning.Render("[DRY-RUN]"), p.Name, a.Name, len(hosts))
	} else {
		_, _ = fmt.Fprintf(out, "%s %s on %d hosts (strategy: %s)\n\n", p.Name, a.Name, len(hosts), execCfg.Strategy)
	}

	result := executor.Execute(ctx, hosts, tasks)
	if err := printResult(out, result); err != nil {
		return err
	}
	if !result.AllSuccessful() {
		failed := result.Unsuccessful()
		ids := make([]string, len(failed))
		for i, id := range failed {
			ids[i] = id.String()
		}
		return fmt.Errorf("%s %s failed on %d of %d hosts: %s", p.Name, a.Name, len(failed), result.TotalHosts(), strings.Join(ids, ", "))
	}
	return nil
}

// selectHosts resolves a comma separated selector list against inv.
func selectHosts(inv *fleet.Inventory, selector string) ([]*fleet.Host, error) {
	target, err := targeting.ParseTarget(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid host selector: %w", err)
	}

	hosts := target.Select(inv)
	if len(hosts) == 0 {
		all := inv.AllHosts()
		ids := make([]string, 0, len(all))
		for _, h := range all {
			ids = append(ids, h.ID().String())
		}
		return nil, cluster.NewHostUnknownError(selector, ids)
	}
	return hosts, nil
}
