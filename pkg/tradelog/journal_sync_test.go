package tradelog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// quietRemote never replays or pushes collection changes, so tests can
// observe the explicit remote load path on its own.
type quietRemote struct {
	*MemoryRemote
}

func (quietRemote) SubscribeCollection(string, func(DocumentChange)) (Unsubscribe, error) {
	return func() {}, nil
}

func signedIn(uid string) *Auth {
	auth := NewAuth()
	auth.SignIn(uid)
	return auth
}

func signedOut() *Auth {
	auth := NewAuth()
	auth.SignOut()
	return auth
}

func TestSave_PushesToRemoteWhenSignedIn(t *testing.T) {
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	events := recordEvents(j)

	_, err := j.AddEntry(KindTP, 5, "btc")
	assertNoError(t, err, "add")
	j.Wait()

	doc, err := remote.GetDocument(context.Background(), "u1", "2024-03-13")
	assertNoError(t, err, "get remote")
	if doc == nil || len(doc.TPs) != 1 || doc.TPs[0].Asset != "BTC" {
		t.Fatalf("expected pushed record, got %+v", doc)
	}
	assertAmount(t, doc.FinalCapital, 105, "pushed final capital")

	if diff := cmp.Diff([]SyncStatus{SyncPending, SyncSuccess}, events.syncStatuses()); diff != "" {
		t.Errorf("sync statuses (-want +got):\n%s", diff)
	}
	if status := j.SyncStatus(); status.Status != SyncSuccess || status.Date != "2024-03-13" {
		t.Errorf("unexpected sync state %+v", status)
	}
}

func TestSave_SkipsRemoteWhenSignedOut(t *testing.T) {
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedOut()})

	_, err := j.AddEntry(KindTP, 5, "btc")
	assertNoError(t, err, "add")
	j.Wait()

	if remote.SetCalls() != 0 {
		t.Errorf("expected no remote writes, got %d", remote.SetCalls())
	}
	if j.SyncStatus().Status != SyncIdle {
		t.Errorf("expected idle sync status, got %s", j.SyncStatus().Status)
	}
}

func TestSave_SkipsRemoteWhenAuthNeverResolves(t *testing.T) {
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: NewAuth()})

	_, err := j.AddEntry(KindSL, 1, "eth")
	assertNoError(t, err, "add")
	if _, rec := j.Current(); len(rec.SLs) != 1 {
		t.Fatal("local write must not wait for auth")
	}
	j.Wait()

	if remote.SetCalls() != 0 {
		t.Errorf("expected remote write to be skipped, got %d calls", remote.SetCalls())
	}
}

func TestSave_RemoteFailureKeepsLocalState(t *testing.T) {
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	events := recordEvents(j)
	remote.FailWith(errors.New("permission denied"))

	_, err := j.AddEntry(KindTP, 2, "BTC")
	assertNoError(t, err, "add must not surface remote failures")
	j.Wait()

	if diff := cmp.Diff([]SyncStatus{SyncPending, SyncError}, events.syncStatuses()); diff != "" {
		t.Errorf("sync statuses (-want +got):\n%s", diff)
	}
	if j.SyncStatus().Error == "" {
		t.Error("expected the failure to be described")
	}
	if _, rec := j.Current(); len(rec.TPs) != 1 {
		t.Error("local state was rolled back")
	}
	if _, ok := j.cache.Get("2024-03-13"); !ok {
		t.Error("local cache lost the record")
	}
}

func TestLoadRemoteForDate_RequiresSignIn(t *testing.T) {
	j := setupTestJournal(t, Options{Remote: NewMemoryRemote(), Auth: signedOut()})
	_, err := j.LoadRemoteForDate(context.Background(), "2024-03-13")
	assertErrorCode(t, err, ErrCodeUnauthenticated, "remote load while signed out")

	local := setupTestJournal(t, Options{})
	_, err = local.LoadRemoteForDate(context.Background(), "2024-03-13")
	assertErrorCode(t, err, ErrCodeUnauthenticated, "remote load without a remote")
}

func TestLoadRemoteForDate_AbsentDocumentKeepsLocal(t *testing.T) {
	auth := signedOut()
	j := setupTestJournal(t, Options{Remote: NewMemoryRemote(), Auth: auth})
	_, err := j.AddEntry(KindTP, 4, "BTC")
	assertNoError(t, err, "add")
	j.Wait()

	auth.SignIn("u1")
	rec, err := j.LoadRemoteForDate(context.Background(), "2024-03-13")
	assertNoError(t, err, "remote load")
	if len(rec.TPs) != 1 || !rec.TPs[0].Value.Equal(NewAmount(4)) {
		t.Errorf("expected local record to survive, got %+v", rec)
	}
}

func TestLoadRemoteForDate_ReplacesDifferentContent(t *testing.T) {
	remote := quietRemote{NewMemoryRemote()}
	auth := signedOut()
	j := setupTestJournal(t, Options{Remote: remote, Auth: auth})
	_, err := j.AddEntry(KindTP, 1, "BTC")
	assertNoError(t, err, "add")
	j.Wait()

	assertNoError(t, remote.SetDocument(context.Background(), "u1", "2024-03-13", testRecord([]float64{9}, nil)), "seed remote")
	auth.SignIn("u1")
	events := recordEvents(j)

	rec, err := j.LoadRemoteForDate(context.Background(), "2024-03-13")
	assertNoError(t, err, "remote load")
	if len(rec.TPs) != 1 || !rec.TPs[0].Value.Equal(NewAmount(9)) {
		t.Fatalf("expected remote entries, got %+v", rec.TPs)
	}
	assertAmount(t, rec.StartCapital, 100, "start from local ledger")
	assertAmount(t, rec.FinalCapital, 109, "recomputed final")
	if events.count(EventRecord) != 1 {
		t.Errorf("expected 1 record event, got %d", events.count(EventRecord))
	}

	_, err = j.LoadRemoteForDate(context.Background(), "2024-03-13")
	assertNoError(t, err, "second remote load")
	if events.count(EventRecord) != 1 {
		t.Error("identical remote content must not re-render")
	}
}

func TestDocumentSubscription_AppliesRemoteChanges(t *testing.T) {
	remote := quietRemote{NewMemoryRemote()}
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	_, err := j.LoadForDate("2024-03-12")
	assertNoError(t, err, "load")
	events := recordEvents(j)

	other := testRecord(nil, []float64{3})
	assertNoError(t, remote.SetDocument(context.Background(), "u1", "2024-03-12", other), "remote write")

	_, rec := j.Current()
	if len(rec.SLs) != 1 {
		t.Fatalf("expected pushed entries in memory, got %+v", rec)
	}
	assertAmount(t, rec.FinalCapital, 97, "recomputed final")
	if _, ok := j.cache.Get("2024-03-12"); ok {
		t.Error("document updates must not write the cache")
	}

	assertNoError(t, remote.SetDocument(context.Background(), "u1", "2024-03-12", other), "same remote write")
	assertNoError(t, remote.SetDocument(context.Background(), "u1", "2024-03-11", testRecord([]float64{1}, nil)), "other date")
	if events.count(EventRecord) != 1 {
		t.Errorf("expected exactly 1 record event, got %d", events.count(EventRecord))
	}
}

func TestCollectionSubscription_MirrorsOtherDevice(t *testing.T) {
	remote := NewMemoryRemote()
	phone := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	laptop := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})

	_, err := phone.AddEntry(KindTP, 2, "BTC")
	assertNoError(t, err, "phone add")
	phone.Wait()

	_, rec := laptop.Current()
	if len(rec.TPs) != 1 {
		t.Fatalf("expected mirrored entry on the selected date, got %+v", rec)
	}
	if _, ok := laptop.cache.Get("2024-03-13"); !ok {
		t.Error("expected mirrored record in the laptop cache")
	}

	_, err = phone.LoadForDate("2024-03-12")
	assertNoError(t, err, "phone load earlier date")
	_, err = phone.AddEntry(KindTP, 3, "ETH")
	assertNoError(t, err, "phone add earlier")
	phone.Wait()

	_, rec = laptop.Current()
	assertAmount(t, rec.StartCapital, 103, "laptop start after earlier change")
	assertAmount(t, rec.FinalCapital, 105, "laptop final after earlier change")

	assertNoError(t, phone.ClearAllGlobal(context.Background()), "phone clear")
	if dates := laptop.KnownDates(); len(dates) != 0 {
		t.Errorf("expected removals to be mirrored, got %v", dates)
	}
	if _, rec = laptop.Current(); !rec.IsEmpty() {
		t.Errorf("expected laptop record reset, got %+v", rec)
	}
}

func TestSignOut_DropsSubscriptions(t *testing.T) {
	remote := NewMemoryRemote()
	phone := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	laptopAuth := signedIn("u1")
	laptop := setupTestJournal(t, Options{Remote: remote, Auth: laptopAuth})

	laptopAuth.SignOut()
	_, err := phone.AddEntry(KindTP, 2, "BTC")
	assertNoError(t, err, "phone add")
	phone.Wait()

	if len(laptop.KnownDates()) != 0 {
		t.Error("signed-out journal still receives remote changes")
	}
	if _, rec := laptop.Current(); !rec.IsEmpty() {
		t.Error("signed-out journal record changed")
	}
}

func TestMigrateLocalToRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	assertNoError(t, remote.SetDocument(ctx, "u1", "2024-03-11", testRecord([]float64{9}, nil)), "seed remote")

	auth := signedOut()
	j := setupTestJournal(t, Options{Remote: remote, Auth: auth})
	for date, value := range map[string]float64{"2024-03-11": 1, "2024-03-12": 2} {
		_, err := j.LoadForDate(date)
		assertNoError(t, err, "load "+date)
		_, err = j.AddEntry(KindTP, value, "BTC")
		assertNoError(t, err, "add "+date)
	}
	_, err := j.LoadForDate("2024-03-10")
	assertNoError(t, err, "load empty day")
	e, _ := j.AddEntry(KindSL, 1, "BTC")
	_, err = j.DeleteEntry(KindSL, e.ID)
	assertNoError(t, err, "delete")
	j.Wait()

	_, err = j.MigrateLocalToRemote(ctx)
	assertErrorCode(t, err, ErrCodeUnauthenticated, "migrate while signed out")

	auth.SignIn("u1")
	result, err := j.MigrateLocalToRemote(ctx)
	assertNoError(t, err, "migrate")
	want := MigrationResult{Uploaded: 1, Skipped: 2, Failed: 0, Dates: []string{"2024-03-12"}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("migration result (-want +got):\n%s", diff)
	}

	doc, _ := remote.GetDocument(ctx, "u1", "2024-03-11")
	if !doc.TPs[0].Value.Equal(NewAmount(9)) {
		t.Error("non-empty remote document was overwritten")
	}
	if doc, _ := remote.GetDocument(ctx, "u1", "2024-03-12"); doc == nil {
		t.Error("expected local-only record to be uploaded")
	}
	if diff := cmp.Diff([]string{"2024-03-11", "2024-03-12"}, j.PendingLocalDates()); diff != "" {
		t.Errorf("pending dates (-want +got):\n%s", diff)
	}
}

func TestClearAllGlobal(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	for _, date := range []string{"2024-03-11", "2024-03-13"} {
		_, err := j.LoadForDate(date)
		assertNoError(t, err, "load "+date)
		_, err = j.AddEntry(KindTP, 2, "BTC")
		assertNoError(t, err, "add "+date)
	}
	j.Wait()

	assertNoError(t, j.ClearAllGlobal(ctx), "clear")
	if len(j.KnownDates()) != 0 || len(j.Ledger()) != 0 {
		t.Errorf("expected empty local state, dates=%v ledger=%v", j.KnownDates(), j.Ledger())
	}
	if ids, _ := remote.ListDocuments(ctx, "u1"); len(ids) != 0 {
		t.Errorf("expected remote documents removed, got %v", ids)
	}
	date, rec := j.Current()
	if date != "2024-03-13" || !rec.IsEmpty() {
		t.Errorf("expected empty record on the selected date, got %s %+v", date, rec)
	}
	assertAmount(t, rec.StartCapital, 100, "reset start")
	if j.SyncStatus().Status != SyncSuccess {
		t.Errorf("expected success status, got %s", j.SyncStatus().Status)
	}
}

func TestClearAllGlobal_RemoteFailureIsNonFatal(t *testing.T) {
	remote := NewMemoryRemote()
	j := setupTestJournal(t, Options{Remote: remote, Auth: signedIn("u1")})
	_, _ = j.AddEntry(KindTP, 2, "BTC")
	j.Wait()

	remote.FailWith(errors.New("offline"))
	assertNoError(t, j.ClearAllGlobal(context.Background()), "clear")
	if len(j.KnownDates()) != 0 {
		t.Error("expected local records cleared")
	}
	if j.SyncStatus().Status != SyncError {
		t.Errorf("expected error status, got %s", j.SyncStatus().Status)
	}
}
