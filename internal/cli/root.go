// Package cli implements the adsync command: manual batch runs, analysis,
// experiment results and variant assignment against the configured stores.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "adsync",
	Short: "Ad-performance ETL and analysis",
	Long: `adsync runs the ad-performance ingestion batch by hand and inspects its
derived data: pattern insights, experiment results and variant assignment.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("ADSYNC_CONFIG", "config/config.yaml"), "config file path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
