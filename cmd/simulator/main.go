package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simulator",
		Short: "Study session simulator",
		Long: `simulator runs study sessions: agents arrive by shuttle, look for a free
seat in a study site, study or give up waiting, and leave. A single scenario
value in [0,1] drives every tunable rate; results are stored per session.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newResultsCmd(),
		newParamsCmd(),
	)
	return rootCmd
}
