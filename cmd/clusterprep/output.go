package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/execution"
)

// printResult writes one row per host, then the output of every step that
// did something, then the totals.
func printResult(w io.Writer, result *execution.FleetResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	//nolint:errcheck // Tabwriter errors are captured by Flush
	fmt.Fprintln(tw, "HOST\tSTATUS\tAPPLIED\tFAILED\tSKIPPED\tDURATION")
	for _, hr := range result.HostResults {
		//nolint:errcheck // Tabwriter errors are captured by Flush
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			hr.HostID,
			styles.hostStatus(hr.Status),
			hr.StepsApplied(),
			hr.StepsFailed(),
			hr.StepsSkipped(),
			hr.Duration().Round(time.Millisecond),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, hr := range result.HostResults {
		var lines []string
		if hr.Error != nil {
			lines = append(lines, "  "+styles.Error.Render(hr.Error.Error()))
		}
		for _, sr := range hr.StepResults {
			if sr.Output == "" && sr.Error == nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("  %s %s", sr.StepID, styles.stepStatus(sr)))
			if sr.Output != "" {
				lines = append(lines, indent(strings.TrimRight(sr.Output, "\n"), "    "))
			}
			if sr.Error != nil {
				lines = append(lines, "    "+sr.Error.Error())
			}
		}
		if len(lines) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s\n%s\n", styles.Title.Render(string(hr.HostID)), strings.Join(lines, "\n"))
	}

	s := result.Summary()
	_, _ = fmt.Fprintf(w, "\n%d hosts: %s, %s, %s (run %s, %s)\n",
		s.TotalHosts,
		styles.Success.Render(fmt.Sprintf("%d succeeded", s.SuccessfulHosts)),
		styles.Error.Render(fmt.Sprintf("%d failed", s.FailedHosts)),
		styles.Muted.Render(fmt.Sprintf("%d skipped", s.SkippedHosts)),
		s.RunID,
		s.TotalDuration.Round(time.Millisecond),
	)
	return nil
}

// printFailures lists the hosts discovery could not resolve.
func printFailures(w io.Writer, failures []cluster.HostFailure) {
	if len(failures) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, styles.Warning.Render(fmt.Sprintf("%d hosts have no address and are left out:", len(failures))))
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "  %s: %v\n", f.Host, f.Err)
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
