package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkscan",
		Short: "Find broken links and missing images on a website",
		Long: `linkscan crawls a website from a seed URL, validates every link and
image it finds, and reports the broken ones.

Environment variables (LINKSCAN_*) set engine defaults; a YAML site file
(.linkscan.yaml or $XDG_CONFIG_HOME/linkscan/config.yaml) sets per-site
scan options and cooperation credentials.`,
		Version:       readBuildInfo().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Site configuration file path")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
