package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"skiff/internal/config"
	"skiff/internal/store"
)

func newHistoryCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delivery history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			journal, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer journal.Close()

			deliveries, err := journal.RecentDeliveries(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(deliveries) == 0 {
				fmt.Fprintln(out, "No deliveries recorded")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(deliveries))
			for _, d := range deliveries {
				rows = append(rows, []string{
					strconv.FormatInt(d.ID, 10),
					d.CreatedAt.Local().Format(time.DateTime),
					strconv.FormatInt(d.OwnerID, 10),
					d.FileName,
					statusCell(d.Status, colorize),
					d.Diagnostic,
				})
			}

			headers := []string{"ID", "When", "Owner", "File", "Status", "Detail"}
			aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of deliveries to show")
	return cmd
}

func statusCell(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case store.StatusDelivered:
		return ansiGreen + status + ansiReset
	case store.StatusFailed:
		return ansiRed + status + ansiReset
	case store.StatusCancelled:
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}
