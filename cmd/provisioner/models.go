package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voice-assistant/provisioner/internal/orchestrator"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models held by the model service",
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := app.orchestrator.Inventory(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}

		if modelsJSON {
			if models == nil {
				models = []orchestrator.ModelInfo{}
			}
			printJSON(cmd.OutOrStdout(), models)
			return nil
		}
		formatModels(cmd.OutOrStdout(), models, time.Now())
		return nil
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print JSON instead of a table")
}
