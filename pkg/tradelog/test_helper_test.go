package tradelog

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testNow is Wednesday 2024-03-13; its week runs 03-11 to 03-17.
var testNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

var amountComparer = cmp.Comparer(func(a, b Amount) bool { return a.Equal(b) })

// setupTestJournal opens a journal over a temp SQLite database with a fixed
// clock and short timers. The journal is closed when the test ends.
func setupTestJournal(t *testing.T, opts Options) *Journal {
	t.Helper()
	if opts.Store == nil && opts.DBPath == "" {
		opts.DBPath = filepath.Join(t.TempDir(), "test.db")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AuthWait == 0 {
		opts.AuthWait = 50 * time.Millisecond
	}
	if opts.SummaryDebounce == 0 {
		opts.SummaryDebounce = 10 * time.Millisecond
	}
	j, err := Open(opts)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// setupTestCache returns a cache and ledger over an in-memory store.
func setupTestCache(t *testing.T) (*LocalCache, *CapitalLedger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	cache, err := NewLocalCache(store, nil)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	return cache, NewCapitalLedger(cache, NewAmount(DefaultStartCapital), nil), store
}

// testRecord builds a record from TP and SL values.
func testRecord(tps []float64, sls []float64) Record {
	rec := NewRecord(Amount{})
	id := int64(1)
	for _, v := range tps {
		rec.TPs = append(rec.TPs, Entry{ID: id, Value: NewAmount(v), Asset: "BTC"})
		id++
	}
	for _, v := range sls {
		rec.SLs = append(rec.SLs, Entry{ID: id, Value: NewAmount(v), Asset: "ETH"})
		id++
	}
	return rec
}

// assertAmount fails the test if got does not equal want exactly.
func assertAmount(t *testing.T, got Amount, want float64, msg string) {
	t.Helper()
	if !got.Equal(NewAmount(want)) {
		t.Errorf("%s: got %s, want %v", msg, got.String(), want)
	}
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertErrorCode fails the test unless err carries code.
func assertErrorCode(t *testing.T, err error, code ErrorCode, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected %s error but got nil", msg, code)
	}
	if !IsErrorCode(err, code) {
		t.Fatalf("%s: expected %s, got %v", msg, code, err)
	}
}

// eventRecorder collects journal events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(j *Journal) *eventRecorder {
	r := &eventRecorder{}
	j.Subscribe(func(ev Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *eventRecorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// lastRecord returns the newest record event for date, or nil.
func (r *eventRecorder) lastRecord(date string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if ev := r.events[i]; ev.Type == EventRecord && ev.Date == date {
			return ev.Record
		}
	}
	return nil
}

func (r *eventRecorder) syncStatuses() []SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SyncStatus
	for _, ev := range r.events {
		if ev.Type == EventSync {
			out = append(out, ev.Sync.Status)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
