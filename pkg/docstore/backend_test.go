package docstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tradelog/pkg/tradelog"
)

// fakeBackend serves the document API over an in-memory store.
type fakeBackend struct {
	store  *tradelog.MemoryRemote
	token  string
	server *httptest.Server

	hits     atomic.Int64
	fail     atomic.Bool
	clientID atomic.Value

	mu    sync.Mutex
	feeds map[*websocket.Conn]struct{}
}

func newFakeBackend(t *testing.T, token string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		store: tradelog.NewMemoryRemote(),
		token: token,
		feeds: map[*websocket.Conn]struct{}{},
	}

	r := chi.NewRouter()
	r.Use(b.guard)
	r.Get("/users/{uid}/journals", b.list)
	r.Post("/users/{uid}/journals:batchGet", b.batchGet)
	r.Get("/users/{uid}/journals:listen", b.listen)
	r.Get("/users/{uid}/journals/{date}", b.get)
	r.Put("/users/{uid}/journals/{date}", b.put)
	r.Delete("/users/{uid}/journals/{date}", b.delete)

	b.server = httptest.NewServer(r)
	t.Cleanup(func() {
		b.dropFeeds()
		b.server.Close()
	})
	return b
}

func (b *fakeBackend) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		if b.fail.Load() {
			http.Error(w, "backend down", http.StatusInternalServerError)
			return
		}
		if b.token != "" && r.Header.Get("Authorization") != "Bearer "+b.token {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		b.clientID.Store(r.Header.Get("X-Client-ID"))
		next.ServeHTTP(w, r)
	})
}

func (b *fakeBackend) lastClientID() string {
	v, _ := b.clientID.Load().(string)
	return v
}

func (b *fakeBackend) get(w http.ResponseWriter, r *http.Request) {
	rec, err := b.store.GetDocument(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}
	writeBody(w, rec)
}

func (b *fakeBackend) put(w http.ResponseWriter, r *http.Request) {
	var rec tradelog.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := b.store.SetDocument(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "date"), rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) delete(w http.ResponseWriter, r *http.Request) {
	if err := b.store.DeleteDocument(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "date")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) list(w http.ResponseWriter, r *http.Request) {
	ids, err := b.store.ListDocuments(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeBody(w, idsPayload{IDs: ids})
}

func (b *fakeBackend) batchGet(w http.ResponseWriter, r *http.Request) {
	var req idsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	docs, err := b.store.GetDocuments(r.Context(), chi.URLParam(r, "uid"), req.IDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeBody(w, documentsPayload{Documents: docs})
}

func (b *fakeBackend) listen(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	var writeMu sync.Mutex
	send := func(change tradelog.DocumentChange) {
		msg := ChangeMessage{Type: string(change.Type), ID: change.Date}
		if change.Record != nil {
			msg.Data, _ = json.Marshal(change.Record)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(msg)
	}

	uid := chi.URLParam(r, "uid")
	var unsub tradelog.Unsubscribe
	if doc := r.URL.Query().Get("doc"); doc != "" {
		unsub, _ = b.store.SubscribeDocument(uid, doc, send)
	} else {
		unsub, _ = b.store.SubscribeCollection(uid, send)
	}
	defer unsub()

	b.mu.Lock()
	b.feeds[conn] = struct{}{}
	b.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.mu.Lock()
	delete(b.feeds, conn)
	b.mu.Unlock()
	conn.Close()
}

// dropFeeds closes every open change feed from the server side.
func (b *fakeBackend) dropFeeds() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.feeds {
		conn.Close()
	}
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
