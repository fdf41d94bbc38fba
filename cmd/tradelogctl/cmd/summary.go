package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tradelog/pkg/tradelog"
)

func newWeekCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "week",
		Short: "Summarize the last weeks ending with the selected date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.weeks < 1 || e.weeks > 52 {
				return tradelog.NewError(tradelog.ErrCodeInvalidInput, "weeks must be between 1 and 52")
			}
			return e.withSummary(cmd, func(ctx context.Context, j *tradelog.Journal, anchor string) (string, error) {
				weeks, err := j.WeeklySummary(ctx, anchor, e.weeks)
				if err != nil {
					return "", fmt.Errorf("weekly summary: %w", err)
				}
				var b strings.Builder
				fmt.Fprintf(&b, "# Weekly summary for %s\n\n", anchor)
				for _, w := range weeks {
					b.WriteString(periodMarkdown("Week", w))
				}
				return b.String(), nil
			})
		},
	}
}

func newMonthCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "month",
		Short: "Summarize the month of the selected date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withSummary(cmd, func(ctx context.Context, j *tradelog.Journal, anchor string) (string, error) {
				month, err := j.MonthlySummary(ctx, anchor)
				if err != nil {
					return "", fmt.Errorf("monthly summary: %w", err)
				}
				return fmt.Sprintf("# Monthly summary for %s\n\n", anchor) + periodMarkdown("Month", month), nil
			})
		},
	}
}

func newLedgerCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the start and final capital of every recorded day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := e.openJournal(cmd)
			if err != nil {
				return err
			}
			defer j.Close()
			return e.print(cmd.OutOrStdout(), ledgerMarkdown(j.Ledger()))
		},
	}
}

func (e *env) withSummary(cmd *cobra.Command, fn func(ctx context.Context, j *tradelog.Journal, anchor string) (string, error)) error {
	j, err := e.openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	anchor := e.date
	if anchor == "" {
		anchor, _ = j.Current()
	}
	if _, err := tradelog.ParseDate(anchor); err != nil {
		return err
	}
	markdown, err := fn(cmd.Context(), j, anchor)
	if err != nil {
		return err
	}
	return e.print(cmd.OutOrStdout(), markdown)
}
