package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
)

// sqliteMagic is the header every non-empty database image starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// StageAssets fetches the two initialization assets concurrently and stages
// the seed data bundle as the shared database file when none exists yet.
//
// The engine runtime bundle is opaque to this core; only its retrievability
// is verified. The data bundle must be empty (fresh database) or a valid
// database image. Either fetch failing fails the whole initialization.
func StageAssets(ctx context.Context, enginePath, dataBundlePath, dbPath string, log *logger.Logger) error {
	var engineData, bundleData []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := fetchAsset(gctx, enginePath)
		if err != nil {
			return &apperrors.AssetFetchError{Asset: "engine", Path: enginePath, Err: err}
		}
		engineData = b
		return nil
	})
	g.Go(func() error {
		b, err := fetchAsset(gctx, dataBundlePath)
		if err != nil {
			return &apperrors.AssetFetchError{Asset: "data", Path: dataBundlePath, Err: err}
		}
		bundleData = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if len(engineData) == 0 {
		return &apperrors.AssetFetchError{Asset: "engine", Path: enginePath, Err: apperrors.ErrInvalidBundle}
	}
	if len(bundleData) > 0 && !bytes.HasPrefix(bundleData, sqliteMagic) {
		return &apperrors.AssetFetchError{Asset: "data", Path: dataBundlePath, Err: apperrors.ErrInvalidBundle}
	}

	log.Debug("assets fetched: engine=%dB data=%dB", len(engineData), len(bundleData))

	if _, err := os.Stat(dbPath); err == nil {
		// Another process (or an earlier run) already staged the database.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return &apperrors.AssetFetchError{Asset: "data", Path: dataBundlePath, Err: err}
	}
	if len(bundleData) == 0 {
		// Empty bundle means a fresh database; the engine creates the file.
		return nil
	}

	tmp := dbPath + ".staging"
	if err := os.WriteFile(tmp, bundleData, 0o644); err != nil {
		return &apperrors.AssetFetchError{Asset: "data", Path: dataBundlePath, Err: err}
	}
	if err := os.Rename(tmp, dbPath); err != nil {
		os.Remove(tmp)
		return &apperrors.AssetFetchError{Asset: "data", Path: dataBundlePath, Err: err}
	}

	log.Info("staged seed data bundle as %s (%d bytes)", dbPath, len(bundleData))
	return nil
}

func fetchAsset(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(path)
}
