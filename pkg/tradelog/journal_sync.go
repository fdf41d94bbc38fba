package tradelog

import (
	"context"
	"time"
)

// SyncStatus is the state shown by the sync indicator.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// SyncState is a snapshot of the sync indicator.
type SyncState struct {
	Status    SyncStatus `json:"status"`
	Date      string     `json:"date,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MigrationResult counts what MigrateLocalToRemote did.
type MigrationResult struct {
	Uploaded int      `json:"uploaded"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Dates    []string `json:"dates"`
}

// SyncStatus returns the sync indicator state.
func (j *Journal) SyncStatus() SyncState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sync
}

func (j *Journal) setSync(status SyncStatus, date string, err error) {
	state := SyncState{Status: status, Date: date, UpdatedAt: j.opts.Now()}
	if err != nil {
		state.Error = err.Error()
	}
	j.mu.Lock()
	j.sync = state
	j.mu.Unlock()
	j.emit(Event{Type: EventSync, Date: date, Sync: &state})
}

// pushRemote is the best-effort remote half of the save pipeline. The caller
// has already registered it in j.pushes and j.inflight.
func (j *Journal) pushRemote(date string, rec Record) {
	defer func() {
		j.mu.Lock()
		if j.inflight[date]--; j.inflight[date] <= 0 {
			delete(j.inflight, date)
		}
		j.mu.Unlock()
		j.pushes.Done()
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), j.opts.AuthWait)
	uid, ok := j.auth.Wait(waitCtx)
	cancel()
	if !ok {
		j.logger.Debug("remote save skipped: not signed in", "date", date)
		return
	}

	j.setSync(SyncPending, date, nil)
	ctx, cancel := context.WithTimeout(context.Background(), j.opts.RemoteTimeout)
	defer cancel()
	if err := j.remote.SetDocument(ctx, uid, date, rec); err != nil {
		if isContextError(err) {
			j.logger.Warn("remote save timed out", "date", date, "timeout", j.opts.RemoteTimeout)
		} else {
			j.logger.Warn("remote save failed", "date", date, "err", err)
		}
		j.setSync(SyncError, date, WrapError(ErrCodeRemote, "remote save", err))
		return
	}
	j.setSync(SyncSuccess, date, nil)
}

// LoadRemoteForDate fetches date from the remote store and replaces the
// in-memory lists when date is still selected and the content differs. An
// absent remote document leaves local data untouched.
func (j *Journal) LoadRemoteForDate(ctx context.Context, date string) (Record, error) {
	if _, err := ParseDate(date); err != nil {
		return Record{}, err
	}
	state := j.auth.State()
	if j.remote == nil || !state.SignedIn() {
		return Record{}, NewError(ErrCodeUnauthenticated, "sign in to load remote data")
	}

	doc, err := j.remote.GetDocument(ctx, state.UID, date)
	if err != nil {
		return Record{}, WrapError(ErrCodeRemote, "load remote record", err)
	}

	j.mu.Lock()
	changed := false
	if doc != nil && j.date == date && !doc.SameEntries(j.current) {
		j.current = j.adoptLocked(date, *doc)
		changed = true
	}
	selected := j.date == date
	rec := j.current.Clone()
	visible := j.summaryVisible
	j.mu.Unlock()

	if changed {
		j.emitRecord(date, rec)
		if visible {
			j.runner.Trigger()
		}
	}
	if selected {
		j.refreshDocumentSubscription(state.UID, date)
	}
	j.ensureCollectionSubscription(state.UID)
	return rec, nil
}

// adoptLocked turns a remote document into the in-memory record, keeping
// the capital fields derived from the local ledger.
func (j *Journal) adoptLocked(date string, doc Record) Record {
	rec := doc.Clone()
	rec.normalize()
	rec.StartCapital = j.ledger.StartCapitalFor(date)
	rec.Recompute()
	return rec
}

func (j *Journal) refreshDocumentSubscription(uid, date string) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	old := j.docUnsub
	j.docUnsub, j.docDate = nil, date
	j.mu.Unlock()
	if old != nil {
		old()
	}

	unsub, err := j.remote.SubscribeDocument(uid, date, func(change DocumentChange) {
		j.applyDocumentChange(date, change)
	})
	if err != nil {
		j.logger.Warn("document subscription failed", "date", date, "err", err)
		return
	}

	j.mu.Lock()
	if j.closed || j.docDate != date || j.docUnsub != nil {
		j.mu.Unlock()
		unsub()
		return
	}
	j.docUnsub = unsub
	j.mu.Unlock()
}

func (j *Journal) applyDocumentChange(date string, change DocumentChange) {
	if change.Record == nil {
		return
	}
	j.mu.Lock()
	if j.date != date || j.inflight[date] > 0 || change.Record.SameEntries(j.current) {
		j.mu.Unlock()
		return
	}
	j.current = j.adoptLocked(date, *change.Record)
	rec := j.current.Clone()
	j.mu.Unlock()

	j.logger.Debug("applied remote document update", "date", date)
	j.emitRecord(date, rec)
}

func (j *Journal) ensureCollectionSubscription(uid string) {
	j.mu.Lock()
	if j.closed || j.collUID == uid {
		j.mu.Unlock()
		return
	}
	old := j.collUnsub
	j.collUnsub, j.collUID = nil, uid
	j.mu.Unlock()
	if old != nil {
		old()
	}

	unsub, err := j.remote.SubscribeCollection(uid, j.applyCollectionChange)
	if err != nil {
		j.logger.Warn("collection subscription failed", "uid", uid, "err", err)
		j.mu.Lock()
		if j.collUID == uid {
			j.collUID = ""
		}
		j.mu.Unlock()
		return
	}

	j.mu.Lock()
	if j.closed || j.collUID != uid || j.collUnsub != nil {
		j.mu.Unlock()
		unsub()
		return
	}
	j.collUnsub = unsub
	j.mu.Unlock()
}

// applyCollectionChange mirrors one remote change into the local cache and
// re-derives the capital curve from its date.
func (j *Journal) applyCollectionChange(change DocumentChange) {
	if !IsValidDate(change.Date) {
		j.logger.Warn("ignoring remote change with malformed date", "date", change.Date)
		return
	}
	date := change.Date

	j.mu.Lock()
	if j.inflight[date] > 0 {
		j.mu.Unlock()
		j.logger.Debug("ignoring remote echo during local write", "date", date)
		return
	}

	cached, had := j.cache.Get(date)
	switch change.Type {
	case ChangeRemoved:
		if !had {
			j.mu.Unlock()
			return
		}
		if err := j.cache.Delete(date); err != nil {
			j.logger.Warn("mirror remote removal failed", "date", date, "err", err)
		}
	default:
		if change.Record == nil {
			j.mu.Unlock()
			return
		}
		if had && cached.SameEntries(*change.Record) {
			j.mu.Unlock()
			return
		}
		rec := change.Record.Clone()
		rec.normalize()
		if err := j.cache.Set(date, rec); err != nil {
			j.logger.Warn("mirror remote change failed", "date", date, "err", err)
		}
	}

	if _, err := j.ledger.RecomputeAndPropagate(date); err != nil {
		j.logger.Warn("capital propagation failed", "date", date, "err", err)
	}
	j.aggregator.Invalidate(date)

	changed := false
	if date <= j.date {
		next := j.readRecord(j.date)
		if !next.SameEntries(j.current) ||
			!next.StartCapital.Equal(j.current.StartCapital) ||
			!next.FinalCapital.Equal(j.current.FinalCapital) {
			j.current = next
			changed = true
		}
	}
	selected := j.date
	rec := j.current.Clone()
	visible := j.summaryVisible
	j.mu.Unlock()

	if changed {
		j.emitRecord(selected, rec)
	}
	if visible {
		j.runner.Trigger()
	}
}

func (j *Journal) onAuthChange(state AuthState) {
	if state.SignedIn() {
		j.ensureCollectionSubscription(state.UID)
		j.mu.Lock()
		date := j.date
		j.mu.Unlock()
		j.refreshDocumentSubscription(state.UID, date)
		return
	}

	j.mu.Lock()
	unsubs := []Unsubscribe{j.docUnsub, j.collUnsub}
	j.docUnsub, j.docDate = nil, ""
	j.collUnsub, j.collUID = nil, ""
	j.mu.Unlock()
	for _, fn := range unsubs {
		if fn != nil {
			fn()
		}
	}
	j.aggregator.Reset()
}

// ClearAllGlobal deletes every local record and the ledger, then every
// remote document of the signed-in user. Remote failures are logged and
// reported through the sync indicator.
func (j *Journal) ClearAllGlobal(ctx context.Context) error {
	j.mu.Lock()
	removed, err := j.cache.Clear(ctx)
	if err != nil {
		j.mu.Unlock()
		return WrapError(ErrCodeStorage, "clear local records", err)
	}
	if err := j.ledger.Reset(); err != nil {
		j.logger.Error("reset capital ledger failed", "err", err)
	}
	j.aggregator.Reset()
	date := j.date
	j.current = NewRecord(j.ledger.DefaultCapital())
	rec := j.current.Clone()
	visible := j.summaryVisible
	j.mu.Unlock()

	j.logger.Info("local journal cleared", "records", removed)
	j.emitRecord(date, rec)
	if visible {
		j.runner.Trigger()
	}

	state := j.auth.State()
	if j.remote == nil || !state.SignedIn() {
		return nil
	}
	j.setSync(SyncPending, "", nil)
	dates, err := j.remote.ListDocuments(ctx, state.UID)
	if err != nil {
		j.logger.Warn("list remote records failed", "err", err)
		j.setSync(SyncError, "", WrapError(ErrCodeRemote, "list remote records", err))
		return nil
	}
	var lastErr error
	for _, d := range dates {
		if err := j.remote.DeleteDocument(ctx, state.UID, d); err != nil {
			j.logger.Warn("delete remote record failed", "date", d, "err", err)
			lastErr = err
		}
	}
	if lastErr != nil {
		j.setSync(SyncError, "", WrapError(ErrCodeRemote, "delete remote records", lastErr))
		return nil
	}
	j.logger.Info("remote journal cleared", "records", len(dates))
	j.setSync(SyncSuccess, "", nil)
	return nil
}

// MigrateLocalToRemote uploads local records the remote store does not
// have yet. Empty local records and non-empty remote documents are skipped;
// per-date failures are counted.
func (j *Journal) MigrateLocalToRemote(ctx context.Context) (MigrationResult, error) {
	result := MigrationResult{Dates: []string{}}
	state := j.auth.State()
	if j.remote == nil || !state.SignedIn() {
		return result, NewError(ErrCodeUnauthenticated, "sign in to migrate local data")
	}

	j.setSync(SyncPending, "", nil)
	var lastErr error
	for _, date := range j.cache.KnownDates() {
		rec, ok := j.cache.Get(date)
		if !ok || rec.IsEmpty() {
			result.Skipped++
			continue
		}
		doc, err := j.remote.GetDocument(ctx, state.UID, date)
		if err != nil {
			j.logger.Warn("migration read failed", "date", date, "err", err)
			result.Failed++
			lastErr = err
			continue
		}
		if doc != nil && !doc.IsEmpty() {
			result.Skipped++
			continue
		}
		if err := j.remote.SetDocument(ctx, state.UID, date, rec); err != nil {
			j.logger.Warn("migration write failed", "date", date, "err", err)
			result.Failed++
			lastErr = err
			continue
		}
		result.Uploaded++
		result.Dates = append(result.Dates, date)
	}

	if lastErr != nil {
		j.setSync(SyncError, "", WrapError(ErrCodeRemote, "migrate local records", lastErr))
	} else {
		j.setSync(SyncSuccess, "", nil)
	}
	j.logger.Info("local records migrated",
		"uploaded", result.Uploaded, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// PendingLocalDates lists local dates that hold entries.
func (j *Journal) PendingLocalDates() []string {
	out := []string{}
	for _, date := range j.cache.KnownDates() {
		if rec, ok := j.cache.Get(date); ok && !rec.IsEmpty() {
			out = append(out, date)
		}
	}
	return out
}
