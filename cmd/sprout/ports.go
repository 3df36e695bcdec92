package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sprout-iot/sprout/pkg/ingest"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := ingest.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
