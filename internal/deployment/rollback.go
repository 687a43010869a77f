// Package deployment tracks the last model confirmed stable in production and
// re-promotes it when a newer deployment fails downstream checks.
package deployment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/ledger"
	"github.com/apexflow/retrainctl/pkg/metrics"
	"github.com/apexflow/retrainctl/pkg/models"
)

// Promoter re-applies a model version as the production model. Implemented by
// the model registry collaborator.
type Promoter interface {
	PromoteVersion(ctx context.Context, version string) error
}

// RollbackManager owns the single stable-model record.
type RollbackManager struct {
	store    *ledger.StableStore
	promoter Promoter
	logger   *zap.Logger
}

// NewRollbackManager builds a rollback manager.
func NewRollbackManager(store *ledger.StableStore, promoter Promoter, logger *zap.Logger) *RollbackManager {
	return &RollbackManager{store: store, promoter: promoter, logger: logger}
}

// RegisterStable overwrites the stable record with the newly promoted model.
// Idempotent: registering the same model twice leaves one live record.
func (r *RollbackManager) RegisterStable(runID, version string) error {
	rec := models.StableModelRecord{
		RunID:      runID,
		Version:    version,
		RecordedAt: time.Now(),
	}
	if err := r.store.Save(rec); err != nil {
		return err
	}
	r.logger.Info("stable_model_registered",
		zap.String("run_id", runID), zap.String("version", version))
	return nil
}

// GetStable returns the current stable record, if one exists.
func (r *RollbackManager) GetStable() (models.StableModelRecord, bool) {
	rec, ok, err := r.store.Get()
	if err != nil {
		r.logger.Error("stable_model_read_failed", zap.Error(err))
		return models.StableModelRecord{}, false
	}
	return rec, ok
}

// AttemptRollback re-promotes the last stable model. Returns false when no
// stable record exists — that state is irrecoverable without manual
// intervention, and logging it loudly is the intended behavior.
func (r *RollbackManager) AttemptRollback(ctx context.Context, reason string) bool {
	stable, ok := r.GetStable()
	if !ok {
		r.logger.Error("rollback_failed_no_stable", zap.String("reason", reason))
		return false
	}
	if err := r.promoter.PromoteVersion(ctx, stable.Version); err != nil {
		r.logger.Error("rollback_promote_failed",
			zap.String("reason", reason),
			zap.String("version", stable.Version),
			zap.Error(err))
		return false
	}
	r.logger.Info("rollback_successful",
		zap.String("reason", reason), zap.String("version", stable.Version))
	metrics.Rollbacks.Inc()
	return true
}
