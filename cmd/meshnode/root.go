package main

import (
	"fmt"
	"os"

	"github.com/danmuck/meshmac/internal/logging"
	"github.com/spf13/cobra"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshnode",
	Short: "RTS/CTS mesh node for a shared half-duplex radio channel.",
	Long: `meshnode runs one station of a one-hop RTS/CTS mesh over a UDP multicast ` +
		`channel (run), an in-process mesh of several stations (sim), and manages ` +
		`node config files (config).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime()
		if logLevel != "" && !logging.SetLevel(logLevel) {
			return fmt.Errorf("unknown log level: %s", logLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "meshnode: %v\n", err)
		os.Exit(1)
	}
}
