package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tradelog/internal/config"
	"tradelog/pkg/tradelog"
)

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	date, _ := h.journal.Current()
	writeSuccess(w, settingsResponse{Theme: h.journal.Theme(), SelectedDate: date})
}

func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	if payload.Theme != nil {
		if err := h.journal.SetTheme(strings.TrimSpace(*payload.Theme)); err != nil {
			writeErrorResponse(w, r, http.StatusBadRequest, err)
			return
		}
	}
	if payload.SelectedDate != nil {
		h.dayMu.Lock()
		_, err := h.journal.LoadForDate(strings.TrimSpace(*payload.SelectedDate))
		h.dayMu.Unlock()
		if err != nil {
			writeErrorResponse(w, r, http.StatusBadRequest, err)
			return
		}
	}
	h.getSettings(w, r)
}

func (h *handler) getStorageInfo(w http.ResponseWriter, r *http.Request) {
	envDBPath := strings.TrimSpace(os.Getenv("TRADELOG_DB_PATH"))

	dbPath := ""
	if pathed, ok := h.journal.Store().(interface{ Path() string }); ok {
		dbPath = pathed.Path()
	}

	var (
		dataDir string
		err     error
	)
	if dbPath != "" {
		dataDir = filepath.Dir(dbPath)
	} else {
		dataDir, err = config.GetDataDir()
		if err != nil {
			writeErrorResponse(w, r, http.StatusInternalServerError, tradelog.WrapError(tradelog.ErrCodeStorage, "load data dir", err))
			return
		}
	}

	available, err := listDBFiles(dataDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			writeErrorResponse(w, r, http.StatusInternalServerError, fmt.Errorf("list storage files: %w", err))
			return
		}
		available = []string{}
	}
	dbName := ""
	if dbPath != "" {
		dbName = filepath.Base(dbPath)
		if !containsString(available, dbName) {
			available = append([]string{dbName}, available...)
		}
	}

	writeSuccess(w, storageInfoResponse{
		DBName:      dbName,
		DBPath:      dbPath,
		DataDir:     dataDir,
		Available:   available,
		KnownDates:  len(h.journal.KnownDates()),
		EnvOverride: envDBPath != "",
	})
}

func listDBFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(filepath.Ext(name), ".db") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
