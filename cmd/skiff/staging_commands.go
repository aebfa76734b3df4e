package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"skiff/internal/config"
	"skiff/internal/staging"
)

func newStagingCommand(configFlag *string) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage staging directories",
	}

	stagingCmd.AddCommand(newStagingListCommand(configFlag))
	stagingCmd.AddCommand(newStagingCleanCommand(configFlag))

	return stagingCmd
}

func newStagingListCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
			out := cmd.OutOrStdout()
			if stagingDir == "" {
				fmt.Fprintln(out, "Staging directory not configured")
				return nil
			}

			dirs, err := staging.ListDirectories(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			if len(dirs) == 0 {
				fmt.Fprintln(out, "Staging directory is empty")
				return nil
			}

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				totalSize += dir.Size
				rows = append(rows, []string{
					dir.Name,
					strconv.FormatInt(dir.OwnerID, 10),
					dir.ModTime.Local().Format(time.DateTime),
					formatSize(dir.Size),
				})
			}

			headers := []string{"Directory", "Owner", "Modified", "Size"}
			aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignRight}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "Total: %s in %d directories\n", formatSize(totalSize), len(dirs))
			return nil
		},
	}
}

func newStagingCleanCommand(configFlag *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			maxAge := cfg.StagingRetention()
			if all {
				maxAge = 0
			}

			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, maxAge, nil)
			out := cmd.OutOrStdout()
			for _, removed := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", removed)
			}
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "Failed %s: %v\n", failure.Path, failure.Error)
			}
			fmt.Fprintf(out, "Removed %d directories\n", len(result.Removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every staging directory regardless of age")
	return cmd
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
