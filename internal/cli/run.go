package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/pkg/distlock"
)

var runBusinesses []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion batch now",
	Long: `Fetch yesterday's insights for every business (or only --business ones),
re-run pattern analysis and refresh experiment results. Takes the same
lock as the scheduled batch.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringSliceVar(&runBusinesses, "business", nil, "business id to ingest (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app.App) error {
		stats, err := a.Scheduler.Trigger(cmd.Context(), runBusinesses)
		if errors.Is(err, distlock.ErrLocked) {
			return fmt.Errorf("another batch is running")
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}
