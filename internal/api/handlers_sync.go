package api

import (
	"net/http"
	"strings"

	"tradelog/pkg/tradelog"
)

func (h *handler) syncState() syncResponse {
	return syncResponse{
		SyncState: h.journal.SyncStatus(),
		Auth:      h.journal.Auth().State(),
	}
}

func (h *handler) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.syncState())
}

func (h *handler) getPendingDates(w http.ResponseWriter, r *http.Request) {
	dates := h.journal.PendingLocalDates()
	if dates == nil {
		dates = []string{}
	}
	writeSuccess(w, pendingResponse{Dates: dates})
}

func (h *handler) migrate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.remoteContext(r)
	defer cancel()
	result, err := h.journal.MigrateLocalToRemote(ctx)
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadGateway, err)
		return
	}
	h.logger.Info("local journal migrated", "uploaded", result.Uploaded, "skipped", result.Skipped, "failed", result.Failed)
	writeSuccess(w, result)
}

func (h *handler) getAuth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.journal.Auth().State())
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var payload signInPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, err)
		return
	}
	uid := strings.TrimSpace(payload.UserID)
	if uid == "" {
		writeErrorResponse(w, r, http.StatusBadRequest, tradelog.NewError(tradelog.ErrCodeInvalidInput, "user_id is required"))
		return
	}
	h.journal.Auth().SignIn(uid)
	writeSuccess(w, h.journal.Auth().State())
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.journal.Auth().SignOut()
	writeSuccess(w, h.journal.Auth().State())
}
