package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the interpreter, venv, container and model service",
	Long: `Doctor probes every provisioned dependency concurrently and prints the
results. It exits non-zero when any probe fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Model.ProbeTimeout*2)
		defer cancel()

		probes := app.orchestrator.RunDeepHealth(ctx)
		if doctorJSON {
			printJSON(cmd.OutOrStdout(), probes)
		} else {
			formatProbes(cmd.OutOrStdout(), probes)
		}

		if !allProbesOK(probes) {
			return errors.New("one or more dependencies are unhealthy")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print JSON instead of a table")
}
