package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"threadpilot/internal/appinfo"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "threadpilot",
	Short: appinfo.Name + " - a Slack bot that fronts a tool-using agent",
	Long: appinfo.Name + ` connects to Slack over socket mode and routes thread
conversations to an LLM agent. Tool activity renders into a small set of
updating messages per thread, and side-effecting tools wait for a human
approve/deny click before they run.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Slack and serve until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appinfo.Display())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
