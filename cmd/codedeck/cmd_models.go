package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the assistant's model catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		models, err := newGatewayClient(cfg).ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			marker := " "
			if m.Default {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, m.ID, m.DisplayName)
		}
		return nil
	},
}
