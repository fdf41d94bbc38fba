package tradelog

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpen_DefaultsToToday(t *testing.T) {
	j := setupTestJournal(t, Options{})
	date, rec := j.Current()
	if date != "2024-03-13" {
		t.Errorf("expected today's date, got %s", date)
	}
	if !rec.IsEmpty() {
		t.Errorf("expected empty record, got %+v", rec)
	}
	assertAmount(t, rec.StartCapital, 100, "default start")
	assertAmount(t, rec.FinalCapital, 100, "default final")
}

func TestOpen_RestoresSelectedDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j := setupTestJournal(t, Options{DBPath: path})
	_, err := j.LoadForDate("2024-02-01")
	assertNoError(t, err, "load")
	_, err = j.AddEntry(KindTP, 3, "sol")
	assertNoError(t, err, "add")
	assertNoError(t, j.Close(), "close")

	reopened := setupTestJournal(t, Options{DBPath: path})
	date, rec := reopened.Current()
	if date != "2024-02-01" {
		t.Errorf("expected restored date, got %s", date)
	}
	if len(rec.TPs) != 1 || rec.TPs[0].Asset != "SOL" {
		t.Errorf("expected persisted entry, got %+v", rec.TPs)
	}
}

func TestOpen_SeedsLedgerFromExistingRecords(t *testing.T) {
	cache, _, store := setupTestCache(t)
	assertNoError(t, cache.Set("2024-03-11", testRecord([]float64{4}, nil)), "seed record")

	j := setupTestJournal(t, Options{Store: store, DefaultCapital: 50})
	entries := j.Ledger()
	assertAmount(t, entries["2024-03-11"].Start, 50, "seeded start")
	assertAmount(t, entries["2024-03-11"].Final, 54, "seeded final")
}

func TestLoadForDate_InvalidDate(t *testing.T) {
	j := setupTestJournal(t, Options{})
	_, err := j.LoadForDate("13/03/2024")
	assertErrorCode(t, err, ErrCodeInvalidInput, "load invalid date")
	if date, _ := j.Current(); date != "2024-03-13" {
		t.Errorf("selection changed on invalid input: %s", date)
	}
}

func TestAddEntry_RejectsInvalidValues(t *testing.T) {
	j := setupTestJournal(t, Options{})
	events := recordEvents(j)

	for _, v := range []float64{-5, 0} {
		_, err := j.AddEntry(KindTP, v, "BTC")
		assertErrorCode(t, err, ErrCodeValidation, "add invalid value")
	}
	_, err := j.AddEntry("fee", 1, "BTC")
	assertErrorCode(t, err, ErrCodeInvalidInput, "add unknown kind")

	if _, rec := j.Current(); !rec.IsEmpty() {
		t.Errorf("expected no mutation, got %+v", rec)
	}
	if events.count(EventRecord) != 0 {
		t.Error("expected no record events for rejected input")
	}
	if len(j.KnownDates()) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestAddEntry_AssignsUniqueIDs(t *testing.T) {
	j := setupTestJournal(t, Options{})
	seen := map[int64]bool{}
	var last int64
	for i := 0; i < 5; i++ {
		e, err := j.AddEntry(KindSL, 1, "")
		assertNoError(t, err, "add")
		if seen[e.ID] || e.ID <= last {
			t.Fatalf("id %d is not unique and increasing (last %d)", e.ID, last)
		}
		if e.Asset != AssetPlaceholder {
			t.Errorf("expected placeholder asset, got %q", e.Asset)
		}
		seen[e.ID] = true
		last = e.ID
	}
	if last != testNow.UnixMilli()+4 {
		t.Errorf("expected timestamp based ids, got %d", last)
	}
}

func TestCapitalScenario(t *testing.T) {
	j := setupTestJournal(t, Options{})

	_, err := j.LoadForDate("2024-03-11")
	assertNoError(t, err, "load day 1")
	tp, err := j.AddEntry(KindTP, 5, "BTC")
	assertNoError(t, err, "add tp")
	_, err = j.AddEntry(KindSL, 2, "ETH")
	assertNoError(t, err, "add sl")
	_, day1 := j.Current()
	assertAmount(t, day1.Net(), 3, "day 1 net")
	assertAmount(t, day1.StartCapital, 100, "day 1 start")
	assertAmount(t, day1.FinalCapital, 103, "day 1 final")

	_, err = j.LoadForDate("2024-03-12")
	assertNoError(t, err, "load day 2")
	_, err = j.AddEntry(KindTP, 10, "BTC")
	assertNoError(t, err, "add day 2 tp")
	_, day2 := j.Current()
	assertAmount(t, day2.StartCapital, 103, "day 2 start")
	assertAmount(t, day2.FinalCapital, 113, "day 2 final")

	_, err = j.LoadForDate("2024-03-11")
	assertNoError(t, err, "reload day 1")
	day1, err = j.EditEntry(KindTP, tp.ID, 1, "BTC")
	assertNoError(t, err, "edit day 1")
	assertAmount(t, day1.FinalCapital, 99, "edited day 1 final")

	day2, err = j.LoadForDate("2024-03-12")
	assertNoError(t, err, "reload day 2")
	assertAmount(t, day2.StartCapital, 99, "propagated day 2 start")
	assertAmount(t, day2.FinalCapital, 109, "propagated day 2 final")
}

func TestFinalCapitalHoldsAfterEveryOperation(t *testing.T) {
	j := setupTestJournal(t, Options{})
	rng := rand.New(rand.NewSource(7))

	var ids []Entry
	kinds := map[int64]Kind{}
	for step := 0; step < 40; step++ {
		var (
			rec Record
			err error
		)
		switch op := rng.Intn(4); {
		case op <= 1 || len(ids) == 0:
			kind := KindTP
			if rng.Intn(2) == 0 {
				kind = KindSL
			}
			var e Entry
			e, err = j.AddEntry(kind, float64(rng.Intn(1000)+1)/100, "btc")
			ids = append(ids, e)
			kinds[e.ID] = kind
			_, rec = j.Current()
		case op == 2:
			i := rng.Intn(len(ids))
			rec, err = j.DeleteEntry(kinds[ids[i].ID], ids[i].ID)
			ids = append(ids[:i], ids[i+1:]...)
		default:
			i := rng.Intn(len(ids))
			rec, err = j.EditEntry(kinds[ids[i].ID], ids[i].ID, float64(rng.Intn(500)+1)/100, "eth")
		}
		assertNoError(t, err, "operation")

		want := rec.StartCapital.Add(rec.TotalTP()).Sub(rec.TotalSL()).Round2()
		if !rec.FinalCapital.Equal(want) {
			t.Fatalf("step %d: final %s != start + net %s", step, rec.FinalCapital, want)
		}
	}
}

func TestEditAndDelete_MissingID(t *testing.T) {
	j := setupTestJournal(t, Options{})
	e, err := j.AddEntry(KindTP, 2, "BTC")
	assertNoError(t, err, "add")

	_, err = j.EditEntry(KindSL, e.ID, 1, "BTC")
	assertErrorCode(t, err, ErrCodeNotFound, "edit in wrong list")
	_, err = j.DeleteEntry(KindTP, e.ID+1)
	assertErrorCode(t, err, ErrCodeNotFound, "delete unknown id")
	_, err = j.EditEntry(KindTP, e.ID, -1, "BTC")
	assertErrorCode(t, err, ErrCodeValidation, "edit invalid value")

	_, rec := j.Current()
	if len(rec.TPs) != 1 || !rec.TPs[0].Value.Equal(NewAmount(2)) {
		t.Errorf("expected entry unchanged, got %+v", rec.TPs)
	}
}

func TestEditEntry_KeepsPosition(t *testing.T) {
	j := setupTestJournal(t, Options{})
	first, _ := j.AddEntry(KindTP, 1, "a")
	second, _ := j.AddEntry(KindTP, 2, "b")
	third, _ := j.AddEntry(KindTP, 3, "c")

	rec, err := j.EditEntry(KindTP, second.ID, 20, " ")
	assertNoError(t, err, "edit")
	want := []Entry{
		first,
		{ID: second.ID, Value: NewAmount(20), Asset: AssetPlaceholder},
		third,
	}
	if diff := cmp.Diff(want, rec.TPs, amountComparer); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	rec, err = j.DeleteEntry(KindTP, first.ID)
	assertNoError(t, err, "delete")
	if len(rec.TPs) != 2 || rec.TPs[0].ID != second.ID {
		t.Errorf("unexpected order after delete: %+v", rec.TPs)
	}
}

func TestClearListAndDay(t *testing.T) {
	j := setupTestJournal(t, Options{})
	_, _ = j.AddEntry(KindTP, 4, "BTC")
	_, _ = j.AddEntry(KindSL, 1, "BTC")

	rec, err := j.ClearList(KindSL)
	assertNoError(t, err, "clear sl")
	if len(rec.SLs) != 0 || len(rec.TPs) != 1 {
		t.Errorf("unexpected lists after clearing sl: %+v", rec)
	}
	assertAmount(t, rec.FinalCapital, 104, "final after clearing sl")

	rec, err = j.ClearAllForDate()
	assertNoError(t, err, "clear day")
	if !rec.IsEmpty() {
		t.Errorf("expected empty record, got %+v", rec)
	}
	assertAmount(t, rec.FinalCapital, 100, "final after clearing day")
	if dates := j.KnownDates(); len(dates) != 1 {
		t.Errorf("cleared day should stay stored, got %v", dates)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	j := setupTestJournal(t, Options{})
	in := Record{
		TPs: []Entry{{ID: 3, Value: NewAmount(1.5), Asset: "btc"}, {ID: 1, Value: NewAmount(2), Asset: "ETH"}},
		SLs: []Entry{{ID: 2, Value: NewAmount(0.75), Asset: ""}},
	}

	saved, err := j.Save("2024-03-10", in)
	assertNoError(t, err, "save")
	assertAmount(t, saved.FinalCapital, 102.75, "saved final")
	if date, _ := j.Current(); date != "2024-03-13" {
		t.Errorf("saving another date must not change the selection, got %s", date)
	}

	loaded, err := j.LoadForDate("2024-03-10")
	assertNoError(t, err, "load")
	if diff := cmp.Diff(saved, loaded, amountComparer); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
	if loaded.TPs[0].Asset != "BTC" || loaded.SLs[0].Asset != AssetPlaceholder {
		t.Errorf("expected normalized assets, got %+v", loaded)
	}

	today, err := j.LoadForDate("2024-03-13")
	assertNoError(t, err, "load later date")
	assertAmount(t, today.StartCapital, 102.75, "later start follows saved day")
}

func TestSave_KeepsFullPrecisionAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j := setupTestJournal(t, Options{DBPath: path})
	_, err := j.AddEntry(KindTP, 0.00004, "btc")
	assertNoError(t, err, "add tiny value")
	_, err = j.AddEntry(KindTP, 1.23456, "eth")
	assertNoError(t, err, "add five decimals")
	_, before := j.Current()
	assertNoError(t, j.Close(), "close")

	reopened := setupTestJournal(t, Options{DBPath: path})
	date, after := reopened.Current()
	if len(after.TPs) != 2 {
		t.Fatalf("expected 2 persisted entries, got %+v", after.TPs)
	}
	assertAmount(t, after.TPs[0].Value, 0.00004, "tiny value after reopen")
	assertAmount(t, after.TPs[1].Value, 1.23456, "five decimals after reopen")
	if diff := cmp.Diff(before, after, amountComparer); diff != "" {
		t.Errorf("reloaded record differs (-before +after):\n%s", diff)
	}

	_, err = reopened.Save(date, after)
	assertNoError(t, err, "re-save reloaded record")
}

func TestSave_EarlierDateRefreshesSelectedCapital(t *testing.T) {
	j := setupTestJournal(t, Options{})
	_, err := j.AddEntry(KindTP, 10, "BTC")
	assertNoError(t, err, "add on selected day")
	events := recordEvents(j)

	_, err = j.Save("2024-03-12", Record{TPs: []Entry{{ID: 1, Value: NewAmount(1)}}})
	assertNoError(t, err, "save earlier day")

	_, rec := j.Current()
	assertAmount(t, rec.StartCapital, 101, "selected start")
	assertAmount(t, rec.FinalCapital, 111, "selected final")
	if len(rec.TPs) != 1 {
		t.Errorf("selected entries must be kept, got %+v", rec.TPs)
	}

	cached, ok := j.cache.Get("2024-03-13")
	if !ok {
		t.Fatal("expected selected day in cache")
	}
	if diff := cmp.Diff(cached, rec, amountComparer); diff != "" {
		t.Errorf("in-memory record differs from cache (-cache +current):\n%s", diff)
	}

	ev := events.lastRecord("2024-03-13")
	if ev == nil {
		t.Fatal("expected a record event for the selected day")
	}
	assertAmount(t, ev.FinalCapital, 111, "event final")

	_, err = j.Save("2024-03-14", Record{SLs: []Entry{{ID: 1, Value: NewAmount(2)}}})
	assertNoError(t, err, "save later day")
	if _, rec = j.Current(); !rec.FinalCapital.Equal(NewAmount(111)) {
		t.Errorf("later save must not move the selected day, got %s", rec.FinalCapital)
	}
}

func TestSave_RejectsInvalidRecords(t *testing.T) {
	j := setupTestJournal(t, Options{})
	tests := []struct {
		name string
		rec  Record
	}{
		{"negative value", Record{TPs: []Entry{{ID: 1, Value: NewAmount(-1)}}}},
		{"duplicate id", Record{SLs: []Entry{{ID: 1, Value: NewAmount(1)}, {ID: 1, Value: NewAmount(2)}}}},
		{"missing id", Record{TPs: []Entry{{Value: NewAmount(1)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Save("2024-03-13", tt.rec)
			assertErrorCode(t, err, ErrCodeValidation, tt.name)
		})
	}
	if len(j.KnownDates()) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestEvents_RecordAndSummary(t *testing.T) {
	j := setupTestJournal(t, Options{})
	events := recordEvents(j)

	_, _ = j.AddEntry(KindTP, 2, "BTC")
	if events.count(EventRecord) != 1 {
		t.Errorf("expected 1 record event, got %d", events.count(EventRecord))
	}

	j.SetSummaryVisible(true)
	waitFor(t, func() bool { return events.count(EventSummary) == 1 }, "summary event")

	report, ok := j.Summaries()
	if !ok {
		t.Fatal("expected a generated report")
	}
	if len(report.Weeks) != 1 || report.Weeks[0].TotalDays != 1 {
		t.Errorf("unexpected weekly summary %+v", report.Weeks)
	}
	if report.Month.Start != "2024-03-01" || report.Month.WinDays != 1 {
		t.Errorf("unexpected monthly summary %+v", report.Month)
	}

	waitFor(t, func() bool { return j.RunnerState() == RunnerIdle }, "idle runner")
	if !j.GenerateSummaries(context.Background()) {
		t.Error("expected direct generation to run while idle")
	}
	if events.count(EventSummary) != 2 {
		t.Errorf("expected 2 summary events, got %d", events.count(EventSummary))
	}
}

func TestSettingsThroughJournal(t *testing.T) {
	j := setupTestJournal(t, Options{})
	if j.Theme() != "light" {
		t.Errorf("expected default theme, got %s", j.Theme())
	}
	assertNoError(t, j.SetTheme("dark"), "set theme")
	if j.Theme() != "dark" {
		t.Errorf("expected dark theme, got %s", j.Theme())
	}
}
