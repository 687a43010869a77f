package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/pkg/models"
)

// productionRecord is the on-disk pointer to the production model: its
// version and the predictions it scored on the evaluation slices at
// deployment time.
type productionRecord struct {
	Version            string    `json:"version"`
	HoldoutPredictions []float64 `json:"holdout_predictions"`
	RecentPredictions  []float64 `json:"recent_predictions"`
}

// FileRegistry is a file-backed model registry: the production pointer lives
// in Dir/production.json. The serving layer (out of this control plane's
// scope) watches the same pointer. Promotion and rollback both reduce to
// rewriting it.
type FileRegistry struct {
	Dir    string
	Logger *zap.Logger
}

func (r *FileRegistry) pointerPath() string {
	return filepath.Join(r.Dir, "production.json")
}

// LoadProduction returns the current production model handle and version, or
// an error when none is registered (the first-deployment gap).
func (r *FileRegistry) LoadProduction(_ context.Context) (models.Model, string, error) {
	raw, err := os.ReadFile(r.pointerPath())
	if err != nil {
		return nil, "", fmt.Errorf("no production model registered: %w", err)
	}
	var rec productionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, "", fmt.Errorf("parsing production record: %w", err)
	}
	if rec.Version == "" {
		return nil, "", fmt.Errorf("production record has no version")
	}
	return NewPrecomputedModel(rec.HoldoutPredictions, rec.RecentPredictions), rec.Version, nil
}

// PromoteVersion rewrites the production pointer to the given version,
// keeping whatever predictions a matching archived record carries. Archived
// records live next to the pointer as <version>.json.
func (r *FileRegistry) PromoteVersion(_ context.Context, version string) error {
	rec := productionRecord{Version: version}

	archived := filepath.Join(r.Dir, sanitize(version)+".json")
	if raw, err := os.ReadFile(archived); err == nil {
		if jerr := json.Unmarshal(raw, &rec); jerr != nil {
			r.Logger.Warn("archived_record_unreadable", zap.String("version", version), zap.Error(jerr))
			rec = productionRecord{Version: version}
		}
		rec.Version = version
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling production record: %w", err)
	}
	tmp := r.pointerPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing production record: %w", err)
	}
	if err := os.Rename(tmp, r.pointerPath()); err != nil {
		return fmt.Errorf("replacing production record: %w", err)
	}
	r.Logger.Info("production_pointer_updated", zap.String("version", version))
	return nil
}

func sanitize(version string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.':
			return c
		}
		return '_'
	}, version)
}
