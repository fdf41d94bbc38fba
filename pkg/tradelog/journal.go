package tradelog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Options controls Journal initialization.
type Options struct {
	// Store backs the local cache. When nil, DBPath opens a SQLiteStore
	// owned by the journal; when both are empty an in-memory store is used.
	Store  KVStore
	DBPath string

	Remote RemoteStore
	Auth   *Auth
	Logger *slog.Logger

	DefaultCapital  float64
	AuthWait        time.Duration
	RemoteTimeout   time.Duration
	SummaryDebounce time.Duration
	SummaryWeeks    int

	Now      func() time.Time
	Location *time.Location
}

// EventType classifies journal events.
type EventType string

const (
	EventRecord  EventType = "record"
	EventSummary EventType = "summary"
	EventSync    EventType = "sync"
)

// Event is delivered to subscribers after state changes. Subscribers are
// never called with journal locks held.
type Event struct {
	Type    EventType      `json:"type"`
	Date    string         `json:"date,omitempty"`
	Record  *Record        `json:"record,omitempty"`
	Summary *SummaryReport `json:"summary,omitempty"`
	Sync    *SyncState     `json:"sync,omitempty"`
}

// Journal owns the application state: the selected date, its record, the
// sync indicator and the remote subscriptions.
type Journal struct {
	opts       Options
	logger     *slog.Logger
	store      KVStore
	ownsStore  bool
	cache      *LocalCache
	ledger     *CapitalLedger
	remote     RemoteStore
	auth       *Auth
	aggregator *Aggregator
	runner     *SummaryRunner

	mu             sync.Mutex
	date           string
	current        Record
	lastID         int64
	sync           SyncState
	summaryVisible bool
	report         *SummaryReport
	inflight       map[string]int
	docUnsub       Unsubscribe
	docDate        string
	collUnsub      Unsubscribe
	collUID        string
	authUnsub      func()
	closed         bool

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int

	pushes sync.WaitGroup
}

// Open initializes a Journal, restoring the persisted date selection.
func Open(opts Options) (*Journal, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultCapital <= 0 {
		opts.DefaultCapital = DefaultStartCapital
	}
	opts.AuthWait = defaultDuration(opts.AuthWait, 1500*time.Millisecond)
	opts.RemoteTimeout = defaultDuration(opts.RemoteTimeout, 10*time.Second)
	opts.SummaryDebounce = defaultDuration(opts.SummaryDebounce, 250*time.Millisecond)
	opts.SummaryWeeks = defaultInt(opts.SummaryWeeks, 4)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Auth == nil {
		opts.Auth = NewAuth()
	}

	store := opts.Store
	ownsStore := false
	if store == nil {
		if opts.DBPath != "" {
			sqlite, err := OpenSQLiteStore(opts.DBPath, logger)
			if err != nil {
				return nil, err
			}
			store = sqlite
			ownsStore = true
		} else {
			store = NewMemoryStore()
		}
	}

	cache, err := NewLocalCache(store, logger)
	if err != nil {
		if ownsStore {
			_ = store.Close()
		}
		return nil, WrapError(ErrCodeStorage, "open local cache", err)
	}

	j := &Journal{
		opts:      opts,
		logger:    logger,
		store:     store,
		ownsStore: ownsStore,
		cache:     cache,
		ledger:    NewCapitalLedger(cache, NewAmount(opts.DefaultCapital), logger),
		remote:    opts.Remote,
		auth:      opts.Auth,
		sync:      SyncState{Status: SyncIdle},
		inflight:  map[string]int{},
		observers: map[int]func(Event){},
	}
	j.aggregator = NewAggregator(cache, opts.Remote, opts.Auth, logger)
	j.runner = NewSummaryRunner(opts.SummaryDebounce, j.generateReport)

	if dates := cache.KnownDates(); len(dates) > 0 && len(j.ledger.Entries()) == 0 {
		if _, err := j.ledger.RecomputeAndPropagate(dates[0]); err != nil {
			logger.Warn("initial capital propagation failed", "err", err)
		}
	}

	date, ok := cache.SelectedDate()
	if !ok {
		date = TodayIn(opts.Now(), opts.Location)
	}
	j.date = date
	j.current = j.readRecord(date)

	if j.remote != nil {
		j.authUnsub = j.auth.OnChange(j.onAuthChange)
		if state := j.auth.State(); state.SignedIn() {
			j.onAuthChange(state)
		}
	}
	return j, nil
}

// Close drops subscriptions, stops pending summary runs and waits for
// in-flight remote writes. A store opened from DBPath is closed too.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	unsubs := []func(){j.authUnsub, j.docUnsub, j.collUnsub}
	j.authUnsub, j.docUnsub, j.collUnsub = nil, nil, nil
	j.mu.Unlock()

	for _, fn := range unsubs {
		if fn != nil {
			fn()
		}
	}
	j.runner.Stop()
	j.pushes.Wait()
	if j.ownsStore {
		return j.store.Close()
	}
	return nil
}

// Wait blocks until every background remote write has completed.
func (j *Journal) Wait() {
	j.pushes.Wait()
}

// Auth returns the authentication gate the journal observes.
func (j *Journal) Auth() *Auth {
	return j.auth
}

// Store returns the key-value store behind the local cache.
func (j *Journal) Store() KVStore {
	return j.store
}

// Current returns the selected date and a copy of its record.
func (j *Journal) Current() (string, Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.date, j.current.Clone()
}

// Ledger returns a copy of the capital ledger.
func (j *Journal) Ledger() map[string]LedgerEntry {
	return j.ledger.Entries()
}

// KnownDates lists every locally stored date.
func (j *Journal) KnownDates() []string {
	return j.cache.KnownDates()
}

// Theme returns the persisted UI theme.
func (j *Journal) Theme() string {
	return j.cache.Theme()
}

// SetTheme persists the UI theme.
func (j *Journal) SetTheme(theme string) error {
	return j.cache.SetTheme(theme)
}

// Subscribe registers fn for journal events.
func (j *Journal) Subscribe(fn func(Event)) Unsubscribe {
	j.obsMu.Lock()
	defer j.obsMu.Unlock()
	id := j.nextObs
	j.nextObs++
	j.observers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			j.obsMu.Lock()
			defer j.obsMu.Unlock()
			delete(j.observers, id)
		})
	}
}

func (j *Journal) emit(ev Event) {
	j.obsMu.Lock()
	observers := make([]func(Event), 0, len(j.observers))
	for _, fn := range j.observers {
		observers = append(observers, fn)
	}
	j.obsMu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func (j *Journal) emitRecord(date string, rec Record) {
	j.emit(Event{Type: EventRecord, Date: date, Record: &rec})
}

// LoadForDate selects date and returns its record, building an empty one
// seeded from the ledger when nothing is stored.
func (j *Journal) LoadForDate(date string) (Record, error) {
	if _, err := ParseDate(date); err != nil {
		return Record{}, err
	}
	j.mu.Lock()
	j.date = date
	if err := j.cache.SetSelectedDate(date); err != nil {
		j.logger.Warn("persist selected date failed", "date", date, "err", err)
	}
	j.current = j.readRecord(date)
	rec := j.current.Clone()
	visible := j.summaryVisible
	j.mu.Unlock()

	if j.remote != nil {
		if state := j.auth.State(); state.SignedIn() {
			j.refreshDocumentSubscription(state.UID, date)
		}
	}
	j.emitRecord(date, rec)
	if visible {
		j.runner.Trigger()
	}
	return rec, nil
}

func (j *Journal) readRecord(date string) Record {
	if rec, ok := j.cache.Get(date); ok {
		return rec
	}
	return NewRecord(j.ledger.StartCapitalFor(date))
}

// SetSummaryVisible toggles the summary view. Showing it schedules a run.
func (j *Journal) SetSummaryVisible(visible bool) {
	j.mu.Lock()
	j.summaryVisible = visible
	j.mu.Unlock()
	if visible {
		j.runner.Trigger()
	}
}

// SummaryVisible reports whether the summary view is shown.
func (j *Journal) SummaryVisible() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.summaryVisible
}

// Summaries returns the last generated report, if any.
func (j *Journal) Summaries() (SummaryReport, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.report == nil {
		return SummaryReport{}, false
	}
	return *j.report, true
}

// GenerateSummaries runs the summary pipeline now. It returns false when a
// run is already in flight.
func (j *Journal) GenerateSummaries(ctx context.Context) bool {
	return j.runner.Generate(ctx)
}

// RunnerState returns the summary state machine state.
func (j *Journal) RunnerState() RunnerState {
	return j.runner.State()
}

// WeeklySummary aggregates weeksBack weeks ending with the week of anchor.
func (j *Journal) WeeklySummary(ctx context.Context, anchor string, weeksBack int) ([]PeriodSummary, error) {
	return j.aggregator.WeeklySummary(ctx, anchor, weeksBack)
}

// MonthlySummary aggregates the month of anchor.
func (j *Journal) MonthlySummary(ctx context.Context, anchor string) (PeriodSummary, error) {
	return j.aggregator.MonthlySummary(ctx, anchor)
}

func (j *Journal) generateReport(ctx context.Context) {
	j.mu.Lock()
	date := j.date
	j.mu.Unlock()

	weeks, err := j.aggregator.WeeklySummary(ctx, date, j.opts.SummaryWeeks)
	if err != nil {
		j.logger.Warn("weekly summary failed", "date", date, "err", err)
		return
	}
	month, err := j.aggregator.MonthlySummary(ctx, date)
	if err != nil {
		j.logger.Warn("monthly summary failed", "date", date, "err", err)
		return
	}
	report := SummaryReport{Date: date, Weeks: weeks, Month: month}

	j.mu.Lock()
	j.report = &report
	j.mu.Unlock()
	j.emit(Event{Type: EventSummary, Date: date, Summary: &report})
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
