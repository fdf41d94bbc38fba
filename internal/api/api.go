package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tradelog/pkg/tradelog"
)

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// RemoteTimeout bounds handlers that reach the remote store.
	RemoteTimeout time.Duration
	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration
}

// NewRouter builds the HTTP API router.
func NewRouter(journal *tradelog.Journal) http.Handler {
	return NewRouterWithOptions(journal, Options{})
}

// NewRouterWithOptions builds the HTTP API router with explicit options.
func NewRouterWithOptions(journal *tradelog.Journal, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{
		journal:       journal,
		logger:        logger,
		remoteTimeout: defaultDuration(opts.RemoteTimeout, 15*time.Second),
		keepAlive:     defaultDuration(opts.KeepAlive, 25*time.Second),
	}

	r.Get("/api/health", h.health)

	// Journal
	r.Delete("/api/journal", h.clearAllGlobal)
	r.Get("/api/journal/{date}", h.getDay)
	r.Delete("/api/journal/{date}", h.clearDay)
	r.Post("/api/journal/{date}/remote", h.loadRemoteDay)
	r.Post("/api/journal/{date}/entries", h.addEntry)
	r.Delete("/api/journal/{date}/entries/{kind}", h.clearList)
	r.Put("/api/journal/{date}/entries/{kind}/{id}", h.editEntry)
	r.Delete("/api/journal/{date}/entries/{kind}/{id}", h.deleteEntry)

	// Capital ledger
	r.Get("/api/ledger", h.getLedger)

	// Summaries
	r.Get("/api/summary", h.getSummaryReport)
	r.Get("/api/summary/weekly", h.getWeeklySummary)
	r.Get("/api/summary/monthly", h.getMonthlySummary)
	r.Put("/api/summary/visibility", h.setSummaryVisibility)

	// Sync
	r.Get("/api/sync", h.getSyncStatus)
	r.Get("/api/sync/pending", h.getPendingDates)
	r.Post("/api/sync/migrate", h.migrate)

	// Auth
	r.Get("/api/auth", h.getAuth)
	r.Post("/api/auth/sign-in", h.signIn)
	r.Post("/api/auth/sign-out", h.signOut)

	// Settings and storage
	r.Get("/api/settings", h.getSettings)
	r.Put("/api/settings", h.updateSettings)
	r.Get("/api/storage", h.getStorageInfo)

	// Events
	r.Get("/api/events", h.streamEvents)

	return r
}

type handler struct {
	journal       *tradelog.Journal
	logger        *slog.Logger
	remoteTimeout time.Duration
	keepAlive     time.Duration

	// dayMu serializes select-then-mutate sequences: entry operations act on
	// the journal's selected date.
	dayMu sync.Mutex
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if setter, ok := w.(interface{ SetErrorMessage(string) }); ok {
		setter.SetErrorMessage(message)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func defaultDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
