package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tradelog/pkg/tradelog"
)

func newDayCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "Show the TP and SL entries of a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var date string
			if len(args) == 1 {
				date = args[0]
			}
			return e.withDay(cmd, date, func(j *tradelog.Journal, date string) error {
				_, rec := j.Current()
				return e.print(cmd.OutOrStdout(), dayMarkdown(date, rec))
			})
		},
	}
}

func newAddCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add <tp|sl> <value> [asset]",
		Short: "Add an entry to the selected day",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := tradelog.ParseKind(args[0])
			if err != nil {
				return err
			}
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}
			asset := optionalArg(args, 2)
			return e.withDay(cmd, "", func(j *tradelog.Journal, date string) error {
				entry, err := j.AddEntry(kind, value, asset)
				if err != nil {
					return fmt.Errorf("add entry: %w", err)
				}
				_, rec := j.Current()
				fmt.Fprintf(cmd.OutOrStdout(), "added %s #%d %s %s\n", kind, entry.ID, formatPercent(entry.Value), entry.Asset)
				return e.print(cmd.OutOrStdout(), dayMarkdown(date, rec))
			})
		},
	}
}

func newEditCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <tp|sl> <id> <value> [asset]",
		Short: "Change the value and asset of an entry",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := tradelog.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			value, err := parseValue(args[2])
			if err != nil {
				return err
			}
			asset := optionalArg(args, 3)
			return e.withDay(cmd, "", func(j *tradelog.Journal, date string) error {
				rec, err := j.EditEntry(kind, id, value, asset)
				if err != nil {
					return fmt.Errorf("edit entry: %w", err)
				}
				return e.print(cmd.OutOrStdout(), dayMarkdown(date, rec))
			})
		},
	}
}

func newRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <tp|sl> <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := tradelog.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return e.withDay(cmd, "", func(j *tradelog.Journal, date string) error {
				rec, err := j.DeleteEntry(kind, id)
				if err != nil {
					return fmt.Errorf("delete entry: %w", err)
				}
				return e.print(cmd.OutOrStdout(), dayMarkdown(date, rec))
			})
		},
	}
}

func newClearCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [tp|sl]",
		Short: "Clear one list of the selected day, or both",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withDay(cmd, "", func(j *tradelog.Journal, date string) error {
				var (
					rec tradelog.Record
					err error
				)
				if len(args) == 1 {
					kind, kerr := tradelog.ParseKind(args[0])
					if kerr != nil {
						return kerr
					}
					rec, err = j.ClearList(kind)
				} else {
					rec, err = j.ClearAllForDate()
				}
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				return e.print(cmd.OutOrStdout(), dayMarkdown(date, rec))
			})
		},
	}
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, tradelog.NewError(tradelog.ErrCodeInvalidInput, "value must be a number: "+s)
	}
	return v, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, tradelog.NewError(tradelog.ErrCodeInvalidInput, "invalid entry id: "+s)
	}
	return id, nil
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}
