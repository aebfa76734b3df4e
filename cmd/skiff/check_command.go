package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"skiff/internal/config"
	"skiff/internal/deps"
)

func newCheckCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					state = status.Detail
				}
				requirement := "required"
				if status.Optional {
					requirement = "optional"
				}
				rows = append(rows, []string{status.Name, status.Command, requirement, state})
			}

			out := cmd.OutOrStdout()
			headers := []string{"Tool", "Command", "Requirement", "Status"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
