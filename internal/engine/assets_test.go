package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
)

func writeAsset(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return path
}

// buildBundle produces a real database image to use as a seed data bundle.
func buildBundle(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.db")
	h, err := Open(context.Background(), path, logger.Default())
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	if _, err := h.Exec(context.Background(), "CREATE TABLE seeded (id INTEGER PRIMARY KEY)", nil); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close seed db: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seed db: %v", err)
	}
	return data
}

func TestStageAssetsFreshDatabase(t *testing.T) {
	dir := t.TempDir()
	enginePath := writeAsset(t, dir, "engine.bin", []byte("engine-runtime"))
	bundlePath := writeAsset(t, dir, "seed.db", nil) // empty bundle = fresh database
	dbPath := filepath.Join(dir, "data", "tabsync.db")

	if err := StageAssets(context.Background(), enginePath, bundlePath, dbPath, logger.Default()); err != nil {
		t.Fatalf("StageAssets: %v", err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("empty bundle should not stage a database file, stat err = %v", err)
	}
}

func TestStageAssetsStagesSeedBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := buildBundle(t)
	enginePath := writeAsset(t, dir, "engine.bin", []byte("engine-runtime"))
	bundlePath := writeAsset(t, dir, "seed.db", bundle)
	dbPath := filepath.Join(dir, "data", "tabsync.db")

	if err := StageAssets(context.Background(), enginePath, bundlePath, dbPath, logger.Default()); err != nil {
		t.Fatalf("StageAssets: %v", err)
	}

	staged, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("staged database missing: %v", err)
	}
	if len(staged) != len(bundle) {
		t.Errorf("staged %d bytes, want %d", len(staged), len(bundle))
	}

	// Second staging must not overwrite the live database.
	if err := StageAssets(context.Background(), enginePath, bundlePath, dbPath, logger.Default()); err != nil {
		t.Fatalf("second StageAssets: %v", err)
	}
}

func TestStageAssetsMissingEngine(t *testing.T) {
	dir := t.TempDir()
	bundlePath := writeAsset(t, dir, "seed.db", nil)
	dbPath := filepath.Join(dir, "tabsync.db")

	err := StageAssets(context.Background(), filepath.Join(dir, "absent.bin"), bundlePath, dbPath, logger.Default())
	var fetchErr *apperrors.AssetFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want AssetFetchError", err)
	}
	if fetchErr.Asset != "engine" {
		t.Errorf("failed asset = %q, want engine", fetchErr.Asset)
	}
}

func TestStageAssetsRejectsInvalidBundle(t *testing.T) {
	dir := t.TempDir()
	enginePath := writeAsset(t, dir, "engine.bin", []byte("engine-runtime"))
	bundlePath := writeAsset(t, dir, "seed.db", []byte("not a database image"))
	dbPath := filepath.Join(dir, "tabsync.db")

	err := StageAssets(context.Background(), enginePath, bundlePath, dbPath, logger.Default())
	if !errors.Is(err, apperrors.ErrInvalidBundle) {
		t.Fatalf("err = %v, want ErrInvalidBundle", err)
	}
}

func TestStageAssetsOverHTTP(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/engine.bin":
			w.Write([]byte("engine-runtime"))
		case "/seed.db":
			// empty body: fresh database
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dbPath := filepath.Join(dir, "tabsync.db")
	if err := StageAssets(context.Background(), srv.URL+"/engine.bin", srv.URL+"/seed.db", dbPath, logger.Default()); err != nil {
		t.Fatalf("StageAssets over http: %v", err)
	}

	err := StageAssets(context.Background(), srv.URL+"/missing.bin", srv.URL+"/seed.db", dbPath, logger.Default())
	var fetchErr *apperrors.AssetFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want AssetFetchError for 404", err)
	}
}
