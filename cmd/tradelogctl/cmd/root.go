package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"tradelog/internal/config"
	"tradelog/pkg/tradelog"
)

// env carries what the commands share. Tests replace the clock.
type env struct {
	now func() time.Time

	dbPath string
	date   string
	weeks  int
	plain  bool
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&env{now: time.Now})
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "tradelogctl",
		Short: "Inspect and edit the trading journal from the terminal",
		Long: `tradelogctl reads and writes the same local journal as the widget.

Entries are percentages of capital: a TP adds to the day's capital, an SL
subtracts from it. Each day starts with the previous day's final capital.

Examples:
  tradelogctl day
  tradelogctl add tp 2.5 btc --date 2024-03-13
  tradelogctl week --weeks 8
  tradelogctl ledger --plain`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.dbPath, "db", "", "path to the journal database (default from config)")
	flags.StringVar(&e.date, "date", "", "journal date YYYY-MM-DD (default today)")
	flags.IntVar(&e.weeks, "weeks", 4, "number of weeks for the weekly summary")
	flags.BoolVar(&e.plain, "plain", false, "print raw markdown instead of rendering it")

	root.AddCommand(
		newDayCmd(e),
		newAddCmd(e),
		newEditCmd(e),
		newRmCmd(e),
		newClearCmd(e),
		newWeekCmd(e),
		newMonthCmd(e),
		newLedgerCmd(e),
		newConfigCmd(),
	)
	return root
}

// openJournal opens the local journal without a remote store. The CLI
// never syncs; the server and widget do.
func (e *env) openJournal(cmd *cobra.Command) (*tradelog.Journal, error) {
	dbPath := e.dbPath
	if dbPath == "" {
		p, err := config.GetDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		dbPath = p
	}
	if config.IsFirstRun() {
		fmt.Fprintln(cmd.ErrOrStderr(), "no config file found, using defaults; run `tradelogctl config init` to create one")
	}
	cfg := config.LoadUserConfig()
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	auth := tradelog.NewAuth()
	auth.SignOut()

	j, err := tradelog.Open(tradelog.Options{
		DBPath:         dbPath,
		Auth:           auth,
		Logger:         slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})),
		DefaultCapital: cfg.DefaultCapital,
		Now:            e.now,
		Location:       loc,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// withDay opens the journal, selects the target date and runs fn.
func (e *env) withDay(cmd *cobra.Command, date string, fn func(j *tradelog.Journal, date string) error) error {
	j, err := e.openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	if date == "" {
		date = e.date
	}
	if date == "" {
		date, _ = j.Current()
	}
	if _, err := j.LoadForDate(date); err != nil {
		return err
	}
	return fn(j, date)
}

func (e *env) print(out io.Writer, markdown string) error {
	rendered, err := render(markdown, e.plain)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}
