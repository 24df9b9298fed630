package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clusterprep/internal/adapters/filesystem"
	"github.com/felixgeelhaar/clusterprep/internal/domain/ledger"
	"github.com/felixgeelhaar/clusterprep/internal/domain/lines"
	"github.com/felixgeelhaar/clusterprep/internal/domain/mutation"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

var (
	fileKind     string
	fileDiffKind string
	fileClean    bool
	fileOrdering string
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Edit a local file with backup and revert",
	Long: `File commands run the same merge, backup and revert the deployments use,
against a file on this machine.

Examples:
  clusterprep file set-prop core-site.xml fs.defaultFS hdfs://master/
  clusterprep file set-line --kind hosts /etc/hosts master 10.0.0.1
  clusterprep file set-line --kind exact nagios.cfg cfg_file=/etc/nagios/hosts.cfg
  clusterprep file diff --kind export ~/.bashrc JAVA_HOME /usr/lib/jvm/default
  clusterprep file revert core-site.xml`,
}

var fileSetPropCmd = &cobra.Command{
	Use:   "set-prop <file> <name> <value> [<name> <value>...]",
	Short: "Set properties in a Hadoop-style XML configuration file",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalFile(cmd, func(ctx context.Context, o *mutation.Orchestrator) error {
			assignments, err := mutation.ParsePairs(args[1:])
			if err != nil {
				return err
			}
			return setFile(ctx, cmd.OutOrStdout(), o, args[0], assignments, mutation.NewPropertyMerger(), mutation.PolicyFor(fileClean))
		})
	},
}

var fileSetLineCmd = &cobra.Command{
	Use:   "set-line --kind <kind> <file> <key> [<value>] ...",
	Short: "Set key-anchored lines in a flat file",
	Long: `Set key-anchored lines in a flat file.

Kinds:
  export  "export KEY=VALUE" lines of a shell profile
  hosts   "HOSTNAME IP" lines of a hosts file
  ini     "KEY=VALUE" lines of a defaults file
  exact   whole lines, given without values`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := lines.ParseKind(fileKind)
		if err != nil {
			return err
		}
		assignments, err := lineAssignments(kind, args[1:])
		if err != nil {
			return err
		}
		return withLocalFile(cmd, func(ctx context.Context, o *mutation.Orchestrator) error {
			return setFile(ctx, cmd.OutOrStdout(), o, args[0], assignments, mutation.NewLineMerger(kind), mutation.PolicyFor(fileClean))
		})
	},
}

var fileDiffCmd = &cobra.Command{
	Use:   "diff --kind <kind> <file> <key> [<value>] ...",
	Short: "Show how assignments would change a file",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, assignments, err := diffRequest(fileDiffKind, args[1:])
		if err != nil {
			return err
		}
		return withLocalFile(cmd, func(ctx context.Context, o *mutation.Orchestrator) error {
			return diffFile(ctx, cmd.OutOrStdout(), o, args[0], assignments, m)
		})
	},
}

var fileRevertCmd = &cobra.Command{
	Use:   "revert <file>...",
	Short: "Restore the latest backup of each file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalFile(cmd, func(ctx context.Context, o *mutation.Orchestrator) error {
			for _, file := range args {
				if err := revertFile(ctx, cmd.OutOrStdout(), o, file); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var fileBackupsCmd = &cobra.Command{
	Use:   "backups <file>",
	Short: "List the backups of a file, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalFile(cmd, func(ctx context.Context, o *mutation.Orchestrator) error {
			return listBackups(ctx, cmd.OutOrStdout(), o, args[0])
		})
	},
}

func init() {
	fileCmd.PersistentFlags().StringVar(&fileOrdering, "ordering", string(ledger.OrderingNumeric), "how the latest backup is found (numeric, lexicographic)")
	fileSetPropCmd.Flags().BoolVar(&fileClean, "clean", false, "move the file into its backup and start from an empty file")
	fileSetLineCmd.Flags().BoolVar(&fileClean, "clean", false, "move the file into its backup and start from an empty file")
	fileSetLineCmd.Flags().StringVar(&fileKind, "kind", "", "line kind (export, hosts, ini, exact)")
	_ = fileSetLineCmd.MarkFlagRequired("kind")
	fileDiffCmd.Flags().StringVar(&fileDiffKind, "kind", "property", "file kind (property, export, hosts, ini, exact)")

	kinds := func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		out := []string{"property"}
		for _, k := range lines.Kinds() {
			out = append(out, string(k))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
	_ = fileSetLineCmd.RegisterFlagCompletionFunc("kind", kinds)
	_ = fileDiffCmd.RegisterFlagCompletionFunc("kind", kinds)

	fileCmd.AddCommand(fileSetPropCmd, fileSetLineCmd, fileDiffCmd, fileRevertCmd, fileBackupsCmd)
	rootCmd.AddCommand(fileCmd)
}

// withLocalFile runs fn with an orchestrator over the local disk.
func withLocalFile(cmd *cobra.Command, fn func(ctx context.Context, o *mutation.Orchestrator) error) error {
	ordering, err := ledger.ParseOrdering(fileOrdering)
	if err != nil {
		return err
	}
	ctx, logger, err := commandContext(cmd)
	if err != nil {
		return err
	}
	return fn(ctx, newLocalOrchestrator(filesystem.NewLocalFS(""), ordering, logger))
}

func newLocalOrchestrator(fs ports.RemoteFS, ordering ledger.Ordering, logger ports.Logger) *mutation.Orchestrator {
	return mutation.NewOrchestrator(fs, mutation.WithLedger(ledger.New(ordering)), mutation.WithLogger(logger))
}

// lineAssignments reads key/value pairs, or bare lines for the exact kind.
func lineAssignments(kind lines.Kind, args []string) (mutation.Assignments, error) {
	if kind != lines.KindExactLine {
		return mutation.ParsePairs(args)
	}
	out := make(mutation.Assignments, 0, len(args))
	for _, l := range args {
		out = append(out, mutation.Assignment{Key: l})
	}
	return out, out.Validate()
}

func diffRequest(kind string, args []string) (mutation.Merger, mutation.Assignments, error) {
	if kind == "" || kind == "property" {
		assignments, err := mutation.ParsePairs(args)
		return mutation.NewPropertyMerger(), assignments, err
	}
	k, err := lines.ParseKind(kind)
	if err != nil {
		return nil, nil, err
	}
	assignments, err := lineAssignments(k, args)
	return mutation.NewLineMerger(k), assignments, err
}

func setFile(ctx context.Context, w io.Writer, o *mutation.Orchestrator, file string, assignments mutation.Assignments, m mutation.Merger, policy mutation.Policy) error {
	res, err := o.Mutate(ctx, file, assignments, m, policy)
	if err != nil {
		return err
	}
	if !res.BackupTaken {
		_, _ = fmt.Fprintf(w, "%s: nothing to change\n", file)
		return nil
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	_, _ = fmt.Fprintf(w, "%s %s (backup %s)\n", file, styles.Success.Render(verb), res.Backup.Name())
	for _, warning := range res.Warnings {
		_, _ = fmt.Fprintf(w, "  %s %s\n", styles.Warning.Render("warning:"), warning)
	}
	return nil
}

func diffFile(ctx context.Context, w io.Writer, o *mutation.Orchestrator, file string, assignments mutation.Assignments, m mutation.Merger) error {
	changes, err := o.Diff(ctx, file, assignments, m)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, c := range changes {
		switch c.Action {
		case mutation.ActionAdd:
			fmt.Fprintf(&b, "%s %s\n", styles.Success.Render("+"), c.Key+describeValue(c.Key, c.New))
		case mutation.ActionUpdate:
			fmt.Fprintf(&b, "%s %s: %s -> %s\n", styles.Warning.Render("~"), c.Key, c.Old, c.New)
		default:
			fmt.Fprintf(&b, "%s %s\n", styles.Muted.Render("="), c.Key+describeValue(c.Key, c.New))
		}
	}
	if !mutation.Pending(changes) {
		b.WriteString(file + " is up to date\n")
	}
	_, err = io.WriteString(w, b.String())
	return err
}

func describeValue(key, value string) string {
	if value == key {
		return ""
	}
	return " = " + value
}

func revertFile(ctx context.Context, w io.Writer, o *mutation.Orchestrator, file string) error {
	res, err := o.Revert(ctx, file)
	if err != nil {
		return err
	}
	if !res.Reverted {
		_, _ = fmt.Fprintf(w, "%s: no backup to restore\n", file)
		return nil
	}
	_, _ = fmt.Fprintf(w, "%s %s from %s\n", file, styles.Success.Render("restored"), res.Backup.Name())
	return nil
}

func listBackups(ctx context.Context, w io.Writer, o *mutation.Orchestrator, file string) error {
	backups, err := o.Backups(ctx, file)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		_, _ = fmt.Fprintf(w, "%s has no backups\n", file)
		return nil
	}
	latest, _, err := o.LatestBackup(ctx, file)
	if err != nil {
		return err
	}
	for _, b := range backups {
		marker := ""
		if b.ID == latest.ID {
			marker = styles.Muted.Render("  (restored by revert)")
		}
		_, _ = fmt.Fprintf(w, "%s%s\n", b.Path(), marker)
	}
	return nil
}
