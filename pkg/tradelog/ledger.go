package tradelog

import (
	"log/slog"
	"sort"
	"sync"
)

// CapitalLedger derives each day's start and final capital from the previous
// known day and propagates changes forward in date order.
type CapitalLedger struct {
	cache          *LocalCache
	defaultCapital Amount
	logger         *slog.Logger

	mu sync.Mutex
}

// NewCapitalLedger returns a ledger over cache seeded with defaultCapital.
func NewCapitalLedger(cache *LocalCache, defaultCapital Amount, logger *slog.Logger) *CapitalLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapitalLedger{cache: cache, defaultCapital: defaultCapital.Round2(), logger: logger}
}

// DefaultCapital returns the configured seed capital.
func (l *CapitalLedger) DefaultCapital() Amount {
	return l.defaultCapital
}

// StartCapitalFor returns the date's own start when the ledger has it, else the
// final of the nearest earlier ledger date, else the default capital.
func (l *CapitalLedger) StartCapitalFor(date string) Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger := l.cache.Ledger()
	if entry, ok := ledger[date]; ok {
		return entry.Start
	}
	return l.anchorBefore(ledger, date)
}

// Entries returns a copy of the ledger.
func (l *CapitalLedger) Entries() map[string]LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Ledger()
}

// RecomputeAndPropagate rewrites the ledger for from and every later known
// date. Dates without a record contribute a zero net but still receive
// start and final values. It returns the dates it visited, ascending.
func (l *CapitalLedger) RecomputeAndPropagate(from string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger := l.cache.Ledger()
	dates := l.datesFrom(ledger, from)
	start := l.anchorBefore(ledger, from)

	for _, date := range dates {
		rec, hasRecord := l.cache.Get(date)
		net := Amount{}
		if hasRecord {
			net = rec.Net()
		}
		final := start.Add(net).Round2()
		ledger[date] = LedgerEntry{Start: start, Final: final}

		if hasRecord && (!rec.StartCapital.Equal(start) || !rec.FinalCapital.Equal(final)) {
			rec.StartCapital = start
			rec.FinalCapital = final
			if err := l.cache.Set(date, rec); err != nil {
				l.logger.Error("write propagated capital failed", "date", date, "err", err)
			}
		}
		start = final
	}

	if err := l.cache.SetLedger(ledger); err != nil {
		return dates, err
	}
	l.logger.Debug("capital propagated", "from", from, "dates", len(dates))
	return dates, nil
}

// Reset drops the whole ledger.
func (l *CapitalLedger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.DeleteLedger()
}

// Remove drops a single date from the ledger without propagating.
func (l *CapitalLedger) Remove(date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger := l.cache.Ledger()
	if _, ok := ledger[date]; !ok {
		return nil
	}
	delete(ledger, date)
	return l.cache.SetLedger(ledger)
}

func (l *CapitalLedger) anchorBefore(ledger map[string]LedgerEntry, date string) Amount {
	best := ""
	for d := range ledger {
		if d < date && d > best {
			best = d
		}
	}
	if best == "" {
		return l.defaultCapital
	}
	return ledger[best].Final
}

// datesFrom returns the sorted union of journal and ledger dates >= from.
// The from date itself is always included.
func (l *CapitalLedger) datesFrom(ledger map[string]LedgerEntry, from string) []string {
	seen := map[string]struct{}{from: {}}
	for _, d := range l.cache.KnownDates() {
		if d >= from {
			seen[d] = struct{}{}
		}
	}
	for d := range ledger {
		if d >= from {
			seen[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
