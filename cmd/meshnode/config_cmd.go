package main

import (
	"fmt"

	"github.com/danmuck/meshmac/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or validate node config files",
}

var (
	templateKind   string
	templateOutput string
	templateForce  bool
	validateInput  string
)

var configTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write a default node config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(templateOutput, templateKind, templateForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", templateKind, templateOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a node config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateInput)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s (node_id=%v radio=%s peers=%v)\n",
			validateInput, cfg.NodeID, cfg.Radio, cfg.Peers)
		return nil
	},
}

func init() {
	configTemplateCmd.Flags().StringVar(&templateKind, "kind", config.RadioUDP, "radio kind: udp|sim")
	configTemplateCmd.Flags().StringVar(&templateOutput, "output", "meshnode.toml", "output path for config template")
	configTemplateCmd.Flags().BoolVar(&templateForce, "force", false, "overwrite existing config file")
	configValidateCmd.Flags().StringVar(&validateInput, "input", "meshnode.toml", "config path to validate")

	configCmd.AddCommand(configTemplateCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
