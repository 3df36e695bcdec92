package main

import (
	"github.com/spf13/cobra"
	"github.com/sprout-iot/sprout/internal/errors"
)

func configCmd(global *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration serve would use after merging defaults,
the config file and environment variables.

Examples:
  sprout config
  SPROUT_HEARTBEAT=2s sprout config --format=json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			data, err := cfg.Encode(format)
			if err != nil {
				return errors.New("E601").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	return cmd
}
