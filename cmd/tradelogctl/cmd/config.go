package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tradelog/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, show or validate the configuration file",
		Long: `Manage the tradelog configuration file.

Subcommands:
  init     - Write a default configuration file
  show     - Print the effective configuration
  validate - Check that a configuration file loads

Examples:
  tradelogctl config init -o config.yaml
  tradelogctl config validate -f config.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				p, err := config.ConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				path = p
			}
			if err := config.SaveToFile(config.Defaults(), path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created default configuration: %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "output config file path (default: user config dir)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadUserConfig()
			if cfg.RemoteToken != "" {
				cfg.RemoteToken = "redacted"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var file string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(file)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %s\n", file)
			fmt.Fprintf(out, "  default capital: %.2f\n", cfg.DefaultCapital)
			if cfg.RemoteURL != "" {
				fmt.Fprintf(out, "  remote: %s\n", cfg.RemoteURL)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}
