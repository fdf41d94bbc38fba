package api

import (
	"net/http"
	"strings"

	"tradelog/pkg/tradelog"
)

const (
	defaultSummaryWeeks = 4
	maxSummaryWeeks     = 52
)

// summaryAnchor returns the ?date= parameter, or the selected date.
func (h *handler) summaryAnchor(r *http.Request) string {
	if date := strings.TrimSpace(r.URL.Query().Get("date")); date != "" {
		return date
	}
	date, _ := h.journal.Current()
	return date
}

func (h *handler) getWeeklySummary(w http.ResponseWriter, r *http.Request) {
	anchor := h.summaryAnchor(r)
	weeks := parseIntDefault(r.URL.Query().Get("weeks"), defaultSummaryWeeks)
	if weeks < 1 || weeks > maxSummaryWeeks {
		writeErrorResponse(w, r, http.StatusBadRequest, tradelog.NewError(tradelog.ErrCodeInvalidInput, "weeks must be between 1 and 52"))
		return
	}

	ctx, cancel := h.remoteContext(r)
	defer cancel()
	summaries, err := h.journal.WeeklySummary(ctx, anchor, weeks)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []tradelog.PeriodSummary{}
	}
	writeSuccess(w, weeklySummaryResponse{Anchor: anchor, Weeks: summaries})
}

func (h *handler) getMonthlySummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.remoteContext(r)
	defer cancel()
	summary, err := h.journal.MonthlySummary(ctx, h.summaryAnchor(r))
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, summary)
}

func (h *handler) getSummaryReport(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.summaryReport())
}

func (h *handler) setSummaryVisibility(w http.ResponseWriter, r *http.Request) {
	var payload visibilityPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	h.journal.SetSummaryVisible(payload.Visible)
	writeSuccess(w, h.summaryReport())
}

func (h *handler) summaryReport() summaryReportResponse {
	resp := summaryReportResponse{
		Visible: h.journal.SummaryVisible(),
		State:   h.journal.RunnerState(),
	}
	if report, ok := h.journal.Summaries(); ok {
		resp.Report = &report
	}
	return resp
}
