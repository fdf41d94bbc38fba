package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tradelog/pkg/tradelog"
)

const eventBuffer = 64

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// selectDay makes the {date} path parameter the journal's selected date.
// Callers hold dayMu.
func (h *handler) selectDay(r *http.Request) (string, error) {
	date := chi.URLParam(r, "date")
	if _, err := tradelog.ParseDate(date); err != nil {
		return "", err
	}
	if current, _ := h.journal.Current(); current == date {
		return date, nil
	}
	if _, err := h.journal.LoadForDate(date); err != nil {
		return "", err
	}
	return date, nil
}

func (h *handler) currentDay() dayResponse {
	date, rec := h.journal.Current()
	return newDayResponse(date, rec)
}

func (h *handler) remoteContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.remoteTimeout)
}

func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan tradelog.Event, eventBuffer)
	unsubscribe := h.journal.Subscribe(func(ev tradelog.Event) {
		select {
		case events <- ev:
		default:
			h.logger.Warn("event stream client too slow, dropping event", "type", ev.Type, "date", ev.Date)
		}
	})
	defer unsubscribe()

	initSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	date, rec := h.journal.Current()
	if err := writeSSEEvent(w, flusher, string(tradelog.EventRecord), tradelog.Event{Type: tradelog.EventRecord, Date: date, Record: &rec}); err != nil {
		return
	}
	sync := h.journal.SyncStatus()
	if err := writeSSEEvent(w, flusher, string(tradelog.EventSync), tradelog.Event{Type: tradelog.EventSync, Date: sync.Date, Sync: &sync}); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				h.logger.Debug("event stream closed", "err", err)
				return
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func initSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return tradelog.WrapError(tradelog.ErrCodeInvalidInput, "invalid request body", err)
	}
	return nil
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func parseEntryID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, tradelog.NewError(tradelog.ErrCodeInvalidInput, "invalid entry id")
	}
	return id, nil
}
