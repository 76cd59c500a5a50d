package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
)

var assignSplit int

var assignCmd = &cobra.Command{
	Use:   "assign <subject-id> <experiment-id>",
	Short: "Show which arm a subject is assigned to",
	Long: `Print the deterministic arm for a subject. With --split the experiment is
not loaded and the given original share (0-100) is used instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().IntVar(&assignSplit, "split", -1, "original share in percent; skips the database")
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	subject, expID := args[0], args[1]

	if assignSplit >= 0 {
		split := domain.Split{Original: assignSplit, Variant: 100 - assignSplit}
		if err := split.Validate(); err != nil {
			return err
		}
		v := experiment.Assign(subject, domain.Experiment{ID: expID, Split: split})
		printAssignment(cmd, subject, expID, v)
		return nil
	}

	return withApp(cmd.Context(), func(a *app.App) error {
		v, err := a.Experiment.AssignVariant(cmd.Context(), expID, subject)
		if err != nil {
			return err
		}
		printAssignment(cmd, subject, expID, v)
		return nil
	})
}

func printAssignment(cmd *cobra.Command, subject, expID string, v domain.Variant) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tbucket=%d\t%s\n", subject, expID, experiment.Bucket(subject, expID), v)
}
