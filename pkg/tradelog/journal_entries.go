package tradelog

import "strconv"

// AddEntry appends an entry to the selected date's list.
func (j *Journal) AddEntry(kind Kind, value float64, asset string) (Entry, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Entry{}, err
	}
	if err := validateValue(value); err != nil {
		return Entry{}, err
	}
	var added Entry
	_, err := j.mutate(func(rec *Record) error {
		added = Entry{ID: j.nextIDLocked(*rec), Value: NewAmount(value), Asset: normalizeAsset(asset)}
		list := rec.list(kind)
		*list = append(*list, added)
		return nil
	})
	return added, err
}

// EditEntry replaces the value and asset of an existing entry in place.
func (j *Journal) EditEntry(kind Kind, id int64, value float64, asset string) (Record, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Record{}, err
	}
	if err := validateValue(value); err != nil {
		return Record{}, err
	}
	return j.mutate(func(rec *Record) error {
		list := *rec.list(kind)
		for i := range list {
			if list[i].ID == id {
				list[i].Value = NewAmount(value)
				list[i].Asset = normalizeAsset(asset)
				return nil
			}
		}
		return entryNotFound(kind, id)
	})
}

// DeleteEntry removes an entry from the selected date's list.
func (j *Journal) DeleteEntry(kind Kind, id int64) (Record, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Record{}, err
	}
	return j.mutate(func(rec *Record) error {
		list := rec.list(kind)
		for i, e := range *list {
			if e.ID == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return nil
			}
		}
		return entryNotFound(kind, id)
	})
}

// ClearList empties one list of the selected date.
func (j *Journal) ClearList(kind Kind) (Record, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Record{}, err
	}
	return j.mutate(func(rec *Record) error {
		*rec.list(kind) = []Entry{}
		return nil
	})
}

// ClearAllForDate empties both lists of the selected date.
func (j *Journal) ClearAllForDate() (Record, error) {
	return j.mutate(func(rec *Record) error {
		rec.TPs = []Entry{}
		rec.SLs = []Entry{}
		return nil
	})
}

// Save stores rec for date, recomputing capital and propagating the ledger.
// Local persistence failures are logged; the returned record reflects the
// in-memory state either way.
func (j *Journal) Save(date string, rec Record) (Record, error) {
	if _, err := ParseDate(date); err != nil {
		return Record{}, err
	}
	rec = rec.Clone()
	rec.normalize()
	for _, list := range []*[]Entry{&rec.TPs, &rec.SLs} {
		for i := range *list {
			(*list)[i].Asset = normalizeAsset((*list)[i].Asset)
		}
	}
	if err := validateRecord(rec); err != nil {
		return Record{}, err
	}

	j.mu.Lock()
	res := j.saveLocked(date, rec)
	visible := j.summaryVisible
	j.mu.Unlock()

	j.afterSave(res, visible)
	return res.rec, nil
}

func (j *Journal) mutate(fn func(rec *Record) error) (Record, error) {
	j.mu.Lock()
	date := j.date
	rec := j.current.Clone()
	if err := fn(&rec); err != nil {
		j.mu.Unlock()
		return Record{}, err
	}
	res := j.saveLocked(date, rec)
	visible := j.summaryVisible
	j.mu.Unlock()

	j.afterSave(res, visible)
	return res.rec, nil
}

// saveResult is what the locked half of a save hands to afterSave.
type saveResult struct {
	date string
	rec  Record
	push bool

	// selected is set when propagation from an earlier date moved the
	// capital of the selected day.
	selectedDate string
	selected     *Record
}

// saveLocked runs the local half of the save pipeline and reports whether a
// remote push was registered. Must be called with j.mu held.
func (j *Journal) saveLocked(date string, rec Record) saveResult {
	rec.StartCapital = j.ledger.StartCapitalFor(date)
	rec.Recompute()
	if err := j.cache.Set(date, rec); err != nil {
		j.logger.Error("local save failed", "date", date, "err", err)
	}
	if _, err := j.ledger.RecomputeAndPropagate(date); err != nil {
		j.logger.Error("capital propagation failed", "date", date, "err", err)
	}
	rec.StartCapital = j.ledger.StartCapitalFor(date)
	rec.Recompute()
	j.aggregator.Invalidate(date)

	res := saveResult{date: date, rec: rec}
	switch {
	case date == j.date:
		j.current = rec.Clone()
	case date < j.date:
		// Only the capital of the selected day can move; its lists stay as
		// shown, including unsaved remote updates.
		next := j.current.Clone()
		next.StartCapital = j.ledger.StartCapitalFor(j.date)
		next.Recompute()
		if !next.StartCapital.Equal(j.current.StartCapital) || !next.FinalCapital.Equal(j.current.FinalCapital) {
			j.current = next
			selected := next.Clone()
			res.selectedDate = j.date
			res.selected = &selected
		}
	}
	if j.remote == nil || j.closed {
		return res
	}
	j.inflight[date]++
	j.pushes.Add(1)
	res.push = true
	return res
}

func (j *Journal) afterSave(res saveResult, summaryVisible bool) {
	j.emitRecord(res.date, res.rec.Clone())
	if res.selected != nil {
		j.emitRecord(res.selectedDate, *res.selected)
	}
	if summaryVisible {
		j.runner.Trigger()
	}
	if res.push {
		go j.pushRemote(res.date, res.rec)
	}
}

// nextIDLocked issues a timestamp id that is larger than the last issued id
// and every id already in rec.
func (j *Journal) nextIDLocked(rec Record) int64 {
	id := j.opts.Now().UnixMilli()
	if id <= j.lastID {
		id = j.lastID + 1
	}
	if highest := rec.maxID(); id <= highest {
		id = highest + 1
	}
	j.lastID = id
	return id
}

func validateRecord(rec Record) error {
	for _, kind := range []Kind{KindTP, KindSL} {
		seen := map[int64]struct{}{}
		for _, e := range *rec.list(kind) {
			if err := validateValue(e.Value.Float()); err != nil {
				return err
			}
			if e.ID <= 0 {
				return NewError(ErrCodeValidation, "entry id must be positive")
			}
			if _, dup := seen[e.ID]; dup {
				return NewError(ErrCodeValidation, "duplicate entry id "+strconv.FormatInt(e.ID, 10))
			}
			seen[e.ID] = struct{}{}
		}
	}
	return nil
}

func entryNotFound(kind Kind, id int64) error {
	return NewError(ErrCodeNotFound, string(kind)+" entry "+strconv.FormatInt(id, 10)+" not found")
}
