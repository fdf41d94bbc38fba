package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"tradelog/pkg/tradelog"
)

func (h *handler) getDay(w http.ResponseWriter, r *http.Request) {
	h.dayMu.Lock()
	defer h.dayMu.Unlock()

	date := chi.URLParam(r, "date")
	rec, err := h.journal.LoadForDate(date)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) loadRemoteDay(w http.ResponseWriter, r *http.Request) {
	h.dayMu.Lock()
	defer h.dayMu.Unlock()

	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.remoteContext(r)
	defer cancel()
	rec, err := h.journal.LoadRemoteForDate(ctx, date)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadGateway, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) addEntry(w http.ResponseWriter, r *http.Request) {
	var payload entryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	kind, err := tradelog.ParseKind(payload.Kind)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	h.dayMu.Lock()
	defer h.dayMu.Unlock()
	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	entry, err := h.journal.AddEntry(kind, payload.Value, payload.Asset)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{
		Data: entryResponse{Date: date, Kind: kind, Entry: entry, Day: h.currentDay()},
	})
}

func (h *handler) editEntry(w http.ResponseWriter, r *http.Request) {
	kind, err := tradelog.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := parseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	var payload entryUpdatePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	h.dayMu.Lock()
	defer h.dayMu.Unlock()
	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	rec, err := h.journal.EditEntry(kind, id, payload.Value, payload.Asset)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	kind, err := tradelog.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := parseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	h.dayMu.Lock()
	defer h.dayMu.Unlock()
	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	rec, err := h.journal.DeleteEntry(kind, id)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) clearList(w http.ResponseWriter, r *http.Request) {
	kind, err := tradelog.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}

	h.dayMu.Lock()
	defer h.dayMu.Unlock()
	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	rec, err := h.journal.ClearList(kind)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) clearDay(w http.ResponseWriter, r *http.Request) {
	h.dayMu.Lock()
	defer h.dayMu.Unlock()
	date, err := h.selectDay(r)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	rec, err := h.journal.ClearAllForDate()
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, newDayResponse(date, rec))
}

func (h *handler) clearAllGlobal(w http.ResponseWriter, r *http.Request) {
	h.dayMu.Lock()
	defer h.dayMu.Unlock()

	ctx, cancel := h.remoteContext(r)
	defer cancel()
	if err := h.journal.ClearAllGlobal(ctx); err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccessWithMessage(w, "journal cleared", h.syncState())
}

func (h *handler) getLedger(w http.ResponseWriter, r *http.Request) {
	entries := h.journal.Ledger()
	dates := make([]string, 0, len(entries))
	for date := range entries {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	writeSuccess(w, ledgerResponse{Dates: dates, Entries: entries})
}
