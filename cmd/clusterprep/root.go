package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clusterprep/internal/adapters/logging"
	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "clusterprep",
	Short: "Install and configure Hadoop, Jenkins and Nagios clusters over SSH",
	Long: `Clusterprep prepares a cluster described in a cluster file.

Every configuration file it edits is backed up first, next to the file, as
FILE.bakN, so each change can be reverted:
  clusterprep hadoop config         merge the site properties
  clusterprep hadoop config-revert  restore the previous files`,
	SilenceErrors: true, // main prints errors with formatError
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", cluster.DefaultFile, "cluster file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and technical error details")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")

	registerFlagCompletions()
}

// newLogger returns the console logger selected by the global flags.
func newLogger(w io.Writer) (ports.Logger, error) {
	opts := []logging.ConsoleLoggerOption{logging.WithOutput(w)}
	switch logFormat {
	case "text":
		opts = append(opts, logging.WithTimestamp(false), logging.WithColor(isTerminal(w)))
	case "json":
		opts = append(opts, logging.WithJSONFormat(true))
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", logFormat)
	}
	level, err := ports.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = ports.LevelDebug
	}
	opts = append(opts, logging.WithLevel(level))
	return logging.NewConsoleLogger(opts...), nil
}

// commandContext returns the command context carrying a logger writing to
// stderr.
func commandContext(cmd *cobra.Command) (context.Context, ports.Logger, error) {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ports.ContextWithLogger(ctx, logger), logger, nil
}

func loadCluster() (*cluster.Config, error) {
	return cluster.Load(cfgFile)
}

// newTransport reaches hosts over SSH, except localhost, which is reached
// directly. A zero timeout keeps the SSH default.
func newTransport(cfg *cluster.Config, timeout time.Duration) *transport.RoutedTransport {
	ssh := transport.NewSSHTransport()
	ssh.UseAgent = !cfg.SSH.DisableAgent
	if timeout > 0 {
		ssh.DefaultTimeout = timeout
	}
	return transport.NewRoutedTransport(ssh)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the code and the underlying technical error.
func formatError(err error) string {
	var userErr *cluster.UserError
	if errors.As(err, &userErr) {
		if verbose {
			return userErr.Format()
		}
		msg := userErr.Error()
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Error.Render("Error:"), formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
	})

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"text\tHuman readable lines",
			"json\tOne JSON object per line",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
}
