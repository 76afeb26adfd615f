package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"voice-assistant/provisioner/internal/deps"
)

var (
	depsJSON bool
	pruneYes bool
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Audit and prune the virtual environment's packages",
}

var depsAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report installed packages the project never imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.deps.Audit(cmd.Context())
		if err != nil {
			return fmt.Errorf("auditing dependencies: %w", err)
		}

		if depsJSON {
			printJSON(cmd.OutOrStdout(), a)
		} else {
			formatAudit(cmd.OutOrStdout(), a)
		}
		return nil
	},
}

var depsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Uninstall unused packages and regenerate the requirement files",
	Long: `Prune uninstalls every installed package the project does not import
(pip, setuptools, wheel and pkg-resources are kept), then rewrites
requirements.txt, requirements-dev.txt and requirements.lock from what
remains.

requirements.txt is first renamed to requirements.txt.backup_<timestamp>
and a pip freeze is saved to installed_packages_<timestamp>.txt.
Without --yes the command asks for confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.deps.Audit(cmd.Context())
		if err != nil {
			return fmt.Errorf("auditing dependencies: %w", err)
		}
		formatAudit(cmd.ErrOrStderr(), a)

		confirmed := pruneYes
		if !confirmed && len(a.Unused) > 0 {
			confirmed = confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
				fmt.Sprintf("Uninstall %d packages and rewrite the requirement files?", len(a.Unused)))
		}

		res, err := app.deps.Prune(cmd.Context(), a, confirmed)
		if res != nil {
			printJSON(cmd.OutOrStdout(), res)
		}
		if err != nil {
			return fmt.Errorf("pruning dependencies: %w", err)
		}
		return nil
	},
}

// confirm asks question on w and reads a yes/no answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && strings.TrimSpace(answer) == "" {
		return false
	}
	return deps.Confirmed(answer)
}

func init() {
	depsAuditCmd.Flags().BoolVar(&depsJSON, "json", false, "print JSON instead of a summary")
	depsPruneCmd.Flags().BoolVarP(&pruneYes, "yes", "y", false, "skip the confirmation prompt")

	depsCmd.AddCommand(depsAuditCmd)
	depsCmd.AddCommand(depsPruneCmd)
}
