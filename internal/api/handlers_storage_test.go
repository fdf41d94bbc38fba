package api

import (
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListDBFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.DB", "a.db", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.db"), 0o755); err != nil {
		t.Fatalf("make dir: %v", err)
	}

	got, err := listDBFiles(dir)
	if err != nil {
		t.Fatalf("listDBFiles: %v", err)
	}
	if want := []string{"a.db", "b.DB"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := listDBFiles(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestGetStorageInfo(t *testing.T) {
	t.Setenv("TRADELOG_DB_PATH", "")
	env := setupTestRouter(t)
	addEntry(t, env, "2024-03-12", "tp", 1, "")

	rr := doRequest(env.router, http.MethodGet, "/api/storage", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var info storageInfoResponse
	parseData(t, rr, &info)
	if info.DBName != "test.db" || filepath.Base(info.DBPath) != "test.db" {
		t.Fatalf("unexpected db: %+v", info)
	}
	if info.DataDir != filepath.Dir(info.DBPath) {
		t.Fatalf("expected data dir to contain db, got %+v", info)
	}
	if !reflect.DeepEqual(info.Available, []string{"test.db"}) {
		t.Fatalf("unexpected available files: %v", info.Available)
	}
	if info.KnownDates != 1 || info.EnvOverride {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestContainsString(t *testing.T) {
	if !containsString([]string{"a", "b"}, "b") {
		t.Fatalf("expected match")
	}
	if containsString(nil, "a") {
		t.Fatalf("expected no match")
	}
}
