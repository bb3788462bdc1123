package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/sentinel/internal/scoring"
)

var weightsCmd = &cobra.Command{
	Use:   "weights [file]",
	Short: "Print the built-in weight configuration, or validate a weight file",
	Long: `Without arguments, prints the built-in weight configuration as YAML, which is a
complete starting point for a custom --weights file. With a file argument, loads
and validates it the same way the server does and prints the effective result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := scoring.DefaultWeightConfig()
		if len(args) == 1 {
			loaded, err := scoring.LoadWeightConfig(args[0])
			if err != nil {
				return err
			}
			cfg = loaded
		}

		data, err := scoring.MarshalWeightConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to render weight config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
