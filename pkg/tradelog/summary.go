package tradelog

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// remoteBatchConcurrency bounds how many batch requests run at once.
const remoteBatchConcurrency = 2

// remoteBatchTimeout bounds one shared batch read.
const remoteBatchTimeout = 10 * time.Second

// DaySummary holds the totals of one active day.
type DaySummary struct {
	Date string `json:"date"`
	TP   Amount `json:"tp"`
	SL   Amount `json:"sl"`
	Net  Amount `json:"net"`
}

// PeriodSummary aggregates the active days of a week or month.
type PeriodSummary struct {
	Start     string       `json:"start"`
	End       string       `json:"end"`
	TotalDays int          `json:"total_days"`
	WinDays   int          `json:"win_days"`
	LossDays  int          `json:"loss_days"`
	Net       Amount       `json:"net"`
	WinRate   float64      `json:"win_rate"`
	Days      []DaySummary `json:"days"`
}

// SummaryReport is what the summary view renders for a selected date.
type SummaryReport struct {
	Date  string          `json:"date"`
	Weeks []PeriodSummary `json:"weeks"`
	Month PeriodSummary   `json:"month"`
}

// Aggregator computes win/loss summaries over ranges of records, reading the
// local cache first and the remote store in bounded batches.
type Aggregator struct {
	cache  *LocalCache
	remote RemoteStore
	auth   *Auth
	logger *slog.Logger

	fetched *fetchCache
	group   singleflight.Group
}

// NewAggregator returns an aggregator. remote and auth may be nil.
func NewAggregator(cache *LocalCache, remote RemoteStore, auth *Auth, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		cache:   cache,
		remote:  remote,
		auth:    auth,
		logger:  logger,
		fetched: newFetchCache(),
	}
}

// Invalidate forgets the remote result memoized for date.
func (a *Aggregator) Invalidate(date string) {
	a.fetched.invalidate(date)
}

// Reset forgets every memoized remote result.
func (a *Aggregator) Reset() {
	a.fetched.reset()
}

// WeeklySummary returns weeksBack Monday–Sunday windows, oldest first, the
// last one containing anchor. Weeks without active days are omitted.
func (a *Aggregator) WeeklySummary(ctx context.Context, anchor string, weeksBack int) ([]PeriodSummary, error) {
	t, err := ParseDate(anchor)
	if err != nil {
		return nil, err
	}
	if weeksBack <= 0 {
		weeksBack = 1
	}
	monday, _ := WeekBounds(t)
	first := monday.AddDate(0, 0, -7*(weeksBack-1))
	last := monday.AddDate(0, 0, 6)

	records := a.records(ctx, DateRange(first, last))

	var out []PeriodSummary
	for w := 0; w < weeksBack; w++ {
		start := first.AddDate(0, 0, 7*w)
		summary := summarize(start, start.AddDate(0, 0, 6), records)
		if summary.TotalDays == 0 {
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

// MonthlySummary aggregates the calendar month containing anchor.
func (a *Aggregator) MonthlySummary(ctx context.Context, anchor string) (PeriodSummary, error) {
	t, err := ParseDate(anchor)
	if err != nil {
		return PeriodSummary{}, err
	}
	start, end := MonthBounds(t)
	records := a.records(ctx, DateRange(start, end))
	return summarize(start, end, records), nil
}

func summarize(start, end time.Time, records map[string]Record) PeriodSummary {
	summary := PeriodSummary{Start: FormatDate(start), End: FormatDate(end), Days: []DaySummary{}}
	for _, date := range DateRange(start, end) {
		rec, ok := records[date]
		if !ok || rec.IsEmpty() {
			continue
		}
		day := DaySummary{Date: date, TP: rec.TotalTP(), SL: rec.TotalSL(), Net: rec.Net()}
		summary.Days = append(summary.Days, day)
		summary.TotalDays++
		summary.Net = summary.Net.Add(day.Net)
		switch day.Net.Sign() {
		case 1:
			summary.WinDays++
		case -1:
			summary.LossDays++
		}
	}
	if summary.TotalDays > 0 {
		rate := float64(summary.WinDays) / float64(summary.TotalDays) * 100
		summary.WinRate = math.Round(rate*10) / 10
	}
	return summary
}

// records resolves dates cache-first. Dates missing locally are fetched from
// the remote store when signed in; failures degrade to local data.
func (a *Aggregator) records(ctx context.Context, dates []string) map[string]Record {
	out := make(map[string]Record, len(dates))
	var missing []string
	for _, date := range dates {
		if rec, ok := a.cache.Get(date); ok {
			out[date] = rec
			continue
		}
		if rec, known := a.fetched.get(date); known {
			if rec != nil {
				out[date] = *rec
			}
			continue
		}
		missing = append(missing, date)
	}
	if len(missing) == 0 || a.remote == nil || a.auth == nil {
		return out
	}
	state := a.auth.State()
	if !state.SignedIn() {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(remoteBatchConcurrency)
	for _, chunk := range chunkDates(missing, MaxBatchKeys) {
		chunk := chunk
		g.Go(func() error {
			docs, err := a.fetchBatch(gctx, state.UID, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for date, rec := range docs {
				out[date] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("remote summary read failed; using local data", "err", err)
	}
	return out
}

// fetchBatch reads one chunk of dates. Concurrent callers asking for the same
// chunk share a single remote call, which runs detached from any one caller's
// cancellation under its own timeout.
func (a *Aggregator) fetchBatch(ctx context.Context, uid string, dates []string) (map[string]Record, error) {
	key := uid + "|" + strings.Join(dates, ",")
	ch := a.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteBatchTimeout)
		defer cancel()
		docs, err := a.remote.GetDocuments(callCtx, uid, dates)
		if err != nil {
			return nil, WrapError(ErrCodeRemote, "batch read", err)
		}
		for _, date := range dates {
			if rec, ok := docs[date]; ok {
				rec.normalize()
				a.fetched.put(date, &rec)
			} else {
				a.fetched.put(date, nil)
			}
		}
		return docs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]Record), nil
	}
}

func chunkDates(dates []string, size int) [][]string {
	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)
	var out [][]string
	for len(sorted) > 0 {
		n := size
		if len(sorted) < n {
			n = len(sorted)
		}
		out = append(out, sorted[:n])
		sorted = sorted[n:]
	}
	return out
}

// fetchCache memoizes remote reads per date; a nil record means the remote
// store had no document.
type fetchCache struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func newFetchCache() *fetchCache {
	return &fetchCache{records: map[string]*Record{}}
}

func (c *fetchCache) get(date string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[date]
	if !ok || rec == nil {
		return nil, ok
	}
	clone := rec.Clone()
	return &clone, true
}

func (c *fetchCache) put(date string, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec != nil {
		clone := rec.Clone()
		rec = &clone
	}
	c.records[date] = rec
}

func (c *fetchCache) invalidate(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, date)
}

func (c *fetchCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = map[string]*Record{}
}
