package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/domain"
)

var replayCmd = &cobra.Command{
	Use:   "replay <business-id> <platform> <YYYY-MM-DD>",
	Short: "Re-ingest a day from the raw archive",
	Long: `Load the archived raw items for a business, platform and day and upsert
them again with current experiment tags. The platform API is not called.`,
	Args: cobra.ExactArgs(3),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	businessID, p := args[0], domain.Platform(args[1])
	date, err := time.Parse("2006-01-02", args[2])
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", args[2], err)
	}

	return withApp(cmd.Context(), func(a *app.App) error {
		if a.Archive == nil {
			return fmt.Errorf("raw archive is not enabled")
		}
		items, err := a.Archive.Load(cmd.Context(), businessID, string(p), date)
		if err != nil {
			return err
		}
		n, err := a.Orchestrator.Replay(cmd.Context(), businessID, p, date, items)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d items, upserted %d records\n", len(items), n)
		return nil
	})
}
