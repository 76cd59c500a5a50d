package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/domain"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <business-id>",
	Short: "Re-run pattern analysis for a business",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app.App) error {
		insights, err := a.Analyzer.Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printInsights(cmd, insights)
		return nil
	})
}

func printInsights(cmd *cobra.Command, insights []domain.PatternInsight) {
	out := cmd.OutOrStdout()
	if len(insights) == 0 {
		fmt.Fprintln(out, "No significant patterns.")
		return
	}
	fmt.Fprintln(out, "ELEMENT                           UPLIFT   P-VALUE  ADS WITH/WITHOUT")
	fmt.Fprintln(out, strings.Repeat("─", 70))
	for _, in := range insights {
		name := in.Element
		if len(name) > 32 {
			name = name[:29] + "..."
		}
		fmt.Fprintf(out, "%-32s  %+6.1f%%  %.4f   %d/%d\n",
			name,
			in.Performance.Uplift*100,
			in.Performance.PValue,
			in.Performance.WithElement.SampleSize,
			in.Performance.WithoutElement.SampleSize,
		)
	}
}
