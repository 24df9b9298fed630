package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
)

var (
	fleetHosts   string
	fleetJSON    bool
	fleetTimeout time.Duration
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Inspect the hosts of the cluster file",
	Long: `Fleet commands work on the hosts section of the cluster file.

Use selectors to pick hosts:
  @all        - All hosts
  @rolename   - Hosts playing a role, e.g. @slave
  slave*      - Glob pattern on host IDs
  ~^slave\d+$ - Regular expression on host IDs
  !pattern    - Exclude matching hosts

Examples:
  clusterprep fleet list
  clusterprep fleet ping --hosts @slave
  clusterprep fleet addresses`,
}

var fleetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts and their roles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCluster()
		if err != nil {
			return err
		}
		hosts, err := fleetSelection(cfg)
		if err != nil {
			return err
		}
		if fleetJSON {
			return printHostsJSON(cmd.OutOrStdout(), hosts)
		}
		return printHostsTable(cmd.OutOrStdout(), hosts)
	},
}

var fleetPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test SSH connectivity to hosts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCluster()
		if err != nil {
			return err
		}
		hosts, err := fleetSelection(cfg)
		if err != nil {
			return err
		}
		tr := newTransport(cfg, fleetTimeout)
		defer func() { _ = tr.Close() }()
		return pingHosts(cmd.Context(), cmd.OutOrStdout(), tr, hosts, fleetTimeout)
	},
}

var fleetAddressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Discover the private address of every host",
	Long: `Run the discovery command on every host and print the topology that
"hadoop hosts" and "nagios configure" would write.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCluster()
		if err != nil {
			return err
		}
		ctx, logger, err := commandContext(cmd)
		if err != nil {
			return err
		}
		hosts, err := fleetSelection(cfg)
		if err != nil {
			return err
		}
		tr := newTransport(cfg, 0)
		defer func() { _ = tr.Close() }()

		execCfg := cfg.Execution.ExecutorConfig()
		executor := execution.NewFleetExecutor(tr, execCfg, execution.WithExecutorLogger(logger))
		defer func() { _ = executor.Close() }()

		disc, err := cluster.Discover(ctx, executor.Pool(), hosts, cfg.Discovery, execCfg.MaxParallel)
		if err != nil {
			return err
		}
		return printTopology(cmd.OutOrStdout(), disc)
	},
}

func init() {
	fleetCmd.PersistentFlags().StringVar(&fleetHosts, "hosts", "@all", "hosts to include (comma separated selectors)")
	fleetListCmd.Flags().BoolVar(&fleetJSON, "json", false, "output as JSON")
	fleetPingCmd.Flags().DurationVar(&fleetTimeout, "timeout", 10*time.Second, "connection timeout per host")

	fleetCmd.AddCommand(fleetListCmd, fleetPingCmd, fleetAddressesCmd)
	rootCmd.AddCommand(fleetCmd)
}

func fleetSelection(cfg *cluster.Config) ([]*fleet.Host, error) {
	inv, err := cfg.Inventory()
	if err != nil {
		return nil, err
	}
	return selectHosts(inv, fleetHosts)
}

func printHostsTable(w io.Writer, hosts []*fleet.Host) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	//nolint:errcheck // Tabwriter errors are captured by Flush
	fmt.Fprintln(tw, "HOST\tHOSTNAME\tUSER\tPORT\tROLES")

	for _, h := range hosts {
		summary := h.Summary()
		//nolint:errcheck // Tabwriter errors are captured by Flush
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			summary.ID,
			summary.Hostname,
			summary.User,
			summary.Port,
			strings.Join(summary.Roles, ","),
		)
	}

	return tw.Flush()
}

func printHostsJSON(w io.Writer, hosts []*fleet.Host) error {
	summaries := make([]fleet.HostSummary, len(hosts))
	for i, h := range hosts {
		summaries[i] = h.Summary()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// pingHosts pings the hosts one after the other and prints a table.
func pingHosts(ctx context.Context, w io.Writer, tr transport.Transport, hosts []*fleet.Host, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, _ = fmt.Fprintf(w, "Pinging %d hosts...\n\n", len(hosts))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	//nolint:errcheck // Tabwriter errors are captured by Flush
	fmt.Fprintln(tw, "HOST\tSTATUS\tLATENCY\tERROR")

	failed := 0
	for _, h := range hosts {
		start := time.Now()
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		pingErr := tr.Ping(pingCtx, h)
		cancel()
		latency := time.Since(start)

		status := styles.Success.Render("OK")
		errMsg := ""
		if pingErr != nil {
			failed++
			status = styles.Error.Render("FAILED")
			errMsg = pingErr.Error()
		}

		//nolint:errcheck // Tabwriter errors are captured by Flush
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ID(), status, latency.Round(time.Millisecond), errMsg)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hosts unreachable", failed, len(hosts))
	}
	return nil
}

func printTopology(w io.Writer, disc *cluster.Discovery) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	//nolint:errcheck // Tabwriter errors are captured by Flush
	fmt.Fprintln(tw, "HOST\tHOSTNAME\tADDRESS")
	for _, a := range disc.Topology.Addresses() {
		//nolint:errcheck // Tabwriter errors are captured by Flush
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Host, a.Hostname, a.IP)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printFailures(w, disc.Failures)
	return nil
}
