package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentlens/reportflow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reportflow",
	Short: "Annual report analysis pipeline",
	Long:  "Resolves annual report documents, extracts business overview, financial metrics, and HR insights via staged Claude calls, and persists analysis runs for review and export.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
