package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"secscan/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show analyzer availability and versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup := buildEngine()
		defer cleanup()

		printStatus(engine.StaticStatus())
		printStatus(engine.LLMStatus())
		return nil
	},
}

func printStatus(status models.AnalyzerStatus) {
	if status.Available {
		fmt.Printf("%-10s available (%s)\n", status.Name, status.Version)
		return
	}
	fmt.Printf("%-10s unavailable: %s\n", status.Name, status.Error)
	if status.InstallGuidance != "" {
		fmt.Printf("           %s\n", status.InstallGuidance)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
