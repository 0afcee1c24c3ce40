package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokmz/apsched/pkg/scheduler"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "apsched",
	Short: "apsched - persistent job scheduler for flow runs",
	Long: `apsched runs one-shot and recurring jobs from a SQL or Redis job store.

Available commands:
  run     - Start the scheduler and block until interrupted
  jobs    - List scheduled jobs
  export  - Export jobs to a JSON document
  import  - Import jobs from a JSON document

Examples:
  apsched run -c configs/apsched.yaml
  apsched jobs -c configs/apsched.yaml --user 0c7d2e1a-94b3-4b0e-8f1c-7a6b5d4c3e2f
  apsched export -c configs/apsched.yaml --out jobs.json`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the scheduler version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "apsched", scheduler.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml/json/toml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
