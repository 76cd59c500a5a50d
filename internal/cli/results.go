package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/adinsight/internal/app"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
)

var resultsJSON bool

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show an experiment's results",
	Long:  `Show per-arm conversion rates with Wilson intervals and the variant's lift.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "print the raw result as JSON")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app.App) error {
		exp, err := a.Experiment.Get(cmd.Context(), args[0])
		if errors.Is(err, experiment.ErrNotFound) {
			return fmt.Errorf("experiment '%s' not found", args[0])
		}
		if err != nil {
			return err
		}
		res, err := a.Experiment.Results(cmd.Context(), exp.ID)
		if err != nil {
			return err
		}
		if resultsJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd, exp, res)
		return nil
	})
}

func printResult(cmd *cobra.Command, exp *domain.Experiment, res *domain.ExperimentResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.Name, exp.ID)
	fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
	fmt.Fprintf(out, "WINDOW: %s .. %s\n\n", exp.StartDate.Format("2006-01-02"), exp.EndDate.Format("2006-01-02"))

	fmt.Fprintln(out, "ARM         IMPRESSIONS  CLICKS  CONVERSIONS  RATE     95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 66))
	arms := []struct {
		name string
		s    domain.VariantStats
	}{{"original", res.Results.Original}, {"variant", res.Results.Variant}}
	for _, arm := range arms {
		ci := "N/A"
		if arm.s.RateInterval != nil {
			ci = fmt.Sprintf("[%.2f%%, %.2f%%]", arm.s.RateInterval.Lower*100, arm.s.RateInterval.Upper*100)
		}
		fmt.Fprintf(out, "%-10s  %11d  %6d  %11d  %6.2f%%  %s\n",
			arm.name, arm.s.Impressions, arm.s.Clicks, arm.s.Conversions, arm.s.ConversionRate*100, ci)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "LIFT: %+.1f%%", res.Lift)
	if res.LiftInterval != nil {
		fmt.Fprintf(out, "  [%.1f%%, %.1f%%]", res.LiftInterval.Lower, res.LiftInterval.Upper)
	}
	fmt.Fprintf(out, "\nP-VALUE: %.4f\n", res.PValue)
	if res.IsSignificant {
		fmt.Fprintln(out, "SIGNIFICANT at 95% confidence")
	} else {
		fmt.Fprintln(out, "Not yet significant")
	}
}
