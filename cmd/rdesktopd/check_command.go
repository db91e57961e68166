package main

import (
	"errors"

	"github.com/spf13/cobra"

	"rdesktopd/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the encoder, portal, and devices rdesktopd needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			printTable(cmd.OutOrStdout(), []string{"Check", "Status", "Detail"}, checkRows(results))
			if preflight.Failed(results) {
				return errors.New("one or more required checks failed")
			}
			return nil
		},
	}
}

func checkRows(results []preflight.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		switch {
		case r.Passed:
		case r.Optional:
			status = "warn"
		default:
			status = "fail"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	return rows
}
