package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clusterprep/internal/domain/cluster"
	"github.com/felixgeelhaar/clusterprep/internal/templates"
)

var (
	configFormat string
	initName     string
	initUser     string
	initHosts    []string
	initForce    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check and print the cluster file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cluster file with every default filled in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCluster()
		if err != nil {
			return err
		}
		format, err := cluster.ParseFormat(configFormat)
		if err != nil {
			return err
		}
		return showConfig(cmd.OutOrStdout(), cfg, format)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the cluster file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadCluster()
		if err != nil {
			return err
		}
		inv, err := cfg.Inventory()
		if err != nil {
			return cluster.NewConfigInvalidError(cfgFile, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d hosts, roles %s\n",
			styles.Success.Render("valid"), cfgFile, inv.HostCount(), strings.Join(inv.Roles().Strings(), ", "))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter cluster file",
	Long: `Write a starter cluster file. The first host becomes the master, the
namenode, the resource manager and the job history server; the others are
slaves.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd.OutOrStdout(), cfgFile, templates.ClusterFileData{
			Name:  initName,
			User:  initUser,
			Hosts: initHosts,
		}, initForce)
	},
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format (yaml, toml)")
	configInitCmd.Flags().StringVar(&initName, "name", "cluster", "cluster name")
	configInitCmd.Flags().StringVar(&initUser, "user", "ubuntu", "SSH user")
	configInitCmd.Flags().StringSliceVar(&initHosts, "hosts", []string{"master", "slave1", "slave2"}, "host names, master first")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")

	_ = configShowCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "toml"}, cobra.ShellCompDirectiveNoFileComp
	})

	configCmd.AddCommand(configShowCmd, configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func showConfig(w io.Writer, cfg *cluster.Config, format cluster.Format) error {
	data, err := cfg.Encode(format)
	if err != nil {
		return fmt.Errorf("encode cluster file: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// initConfig writes the starter cluster file to file, which must be YAML.
func initConfig(w io.Writer, file string, data templates.ClusterFileData, force bool) error {
	if cluster.FormatFor(file) != cluster.FormatYAML {
		return fmt.Errorf("the starter cluster file is YAML; choose a .yaml name instead of %s", filepath.Base(file))
	}
	if len(data.Hosts) == 0 {
		return errors.New("at least one host is needed")
	}
	if !force {
		if _, err := os.Stat(file); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", file)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	content, err := templates.GenerateClusterFile(data)
	if err != nil {
		return fmt.Errorf("render cluster file: %w", err)
	}
	if _, err := cluster.Parse([]byte(content), cluster.FormatYAML); err != nil {
		return fmt.Errorf("starter cluster file does not parse: %w", err)
	}

	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	_, _ = fmt.Fprintf(w, "%s %s with %d hosts\n", styles.Success.Render("wrote"), file, len(data.Hosts))
	return nil
}
