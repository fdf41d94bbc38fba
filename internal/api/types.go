package api

import "tradelog/pkg/tradelog"

type dayResponse struct {
	Date   string          `json:"date"`
	Record tradelog.Record `json:"record"`
	TP     float64         `json:"tp"`
	SL     float64         `json:"sl"`
	Net    float64         `json:"net"`
}

func newDayResponse(date string, rec tradelog.Record) dayResponse {
	return dayResponse{
		Date:   date,
		Record: rec,
		TP:     rec.TotalTP().Round2().Float(),
		SL:     rec.TotalSL().Round2().Float(),
		Net:    rec.Net().Round2().Float(),
	}
}

type entryPayload struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Asset string  `json:"asset"`
}

type entryUpdatePayload struct {
	Value float64 `json:"value"`
	Asset string  `json:"asset"`
}

type entryResponse struct {
	Date  string         `json:"date"`
	Kind  tradelog.Kind  `json:"kind"`
	Entry tradelog.Entry `json:"entry"`
	Day   dayResponse    `json:"day"`
}

type ledgerResponse struct {
	Dates   []string                         `json:"dates"`
	Entries map[string]tradelog.LedgerEntry `json:"entries"`
}

type weeklySummaryResponse struct {
	Anchor string                   `json:"anchor"`
	Weeks  []tradelog.PeriodSummary `json:"weeks"`
}

type summaryReportResponse struct {
	Visible bool                    `json:"visible"`
	State   tradelog.RunnerState    `json:"state"`
	Report  *tradelog.SummaryReport `json:"report,omitempty"`
}

type visibilityPayload struct {
	Visible bool `json:"visible"`
}

type syncResponse struct {
	tradelog.SyncState
	Auth tradelog.AuthState `json:"auth"`
}

type pendingResponse struct {
	Dates []string `json:"dates"`
}

type signInPayload struct {
	UserID string `json:"user_id"`
}

type settingsPayload struct {
	Theme        *string `json:"theme"`
	SelectedDate *string `json:"selected_date"`
}

type settingsResponse struct {
	Theme        string `json:"theme"`
	SelectedDate string `json:"selected_date"`
}

type storageInfoResponse struct {
	DBName      string   `json:"db_name"`
	DBPath      string   `json:"db_path"`
	DataDir     string   `json:"data_dir"`
	Available   []string `json:"available"`
	KnownDates  int      `json:"known_dates"`
	EnvOverride bool     `json:"env_override"`
}
