package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talentlens/reportflow/internal/export"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored runs to an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit := exportLimit
		if limit == 0 {
			limit = cfg.Export.Limit
		}

		n, err := export.WriteWorkbook(ctx, st, exportOut, limit)
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d runs to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output workbook path (required)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max runs to export (default from config)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
