// Package orchestration threads a single retraining attempt through the
// control plane: schedule check, data readiness, training, validation gate,
// performance comparison and finally promotion or rollback. Every terminal
// outcome emits exactly one notification event.
package orchestration

import (
	"context"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/deployment"
	"github.com/apexflow/retrainctl/internal/ledger"
	"github.com/apexflow/retrainctl/internal/notify"
	"github.com/apexflow/retrainctl/internal/scheduler"
	"github.com/apexflow/retrainctl/internal/validation"
	"github.com/apexflow/retrainctl/internal/versioning"
	"github.com/apexflow/retrainctl/pkg/metrics"
	"github.com/apexflow/retrainctl/pkg/models"
)

// ReadinessChecker verifies that the latest tracked data version is complete
// and returns the session IDs usable as the training window.
type ReadinessChecker interface {
	CheckLatest(ctx context.Context) (ready bool, sessionIDs []string, details map[string]any, err error)
}

// Trainer fits a candidate model on the given sessions. The training
// algorithm is entirely the collaborator's concern; the flow only needs the
// resulting candidate handle and metrics. Cooperative cancellation of a
// training run is also the trainer's responsibility.
type Trainer interface {
	Train(ctx context.Context, sessionIDs []string) (*models.ModelCandidate, error)
}

// SliceProvider loads the two evaluation slices the gate and comparator
// score candidates on.
type SliceProvider interface {
	EvalSlices(ctx context.Context) (models.EvalSlices, error)
}

// Notifier is the outcome event sink.
type Notifier interface {
	Emit(event string, payload map[string]any)
}

// Flow is the top-level retraining state machine.
type Flow struct {
	optimizer  *scheduler.Optimizer
	readiness  ReadinessChecker
	trainer    Trainer
	slices     SliceProvider
	gate       *validation.Gate
	comparator *validation.Comparator
	rollback   *deployment.RollbackManager
	notifier   Notifier
	attempts   *ledger.AttemptStore
	logger     *zap.Logger
}

// NewFlow wires the flow from explicitly constructed components.
func NewFlow(
	optimizer *scheduler.Optimizer,
	readiness ReadinessChecker,
	trainer Trainer,
	slices SliceProvider,
	gate *validation.Gate,
	comparator *validation.Comparator,
	rollback *deployment.RollbackManager,
	notifier Notifier,
	attempts *ledger.AttemptStore,
	logger *zap.Logger,
) *Flow {
	return &Flow{
		optimizer:  optimizer,
		readiness:  readiness,
		trainer:    trainer,
		slices:     slices,
		gate:       gate,
		comparator: comparator,
		rollback:   rollback,
		notifier:   notifier,
		attempts:   attempts,
		logger:     logger,
	}
}

// Run executes one retraining attempt end to end. Idempotency per trigger is
// enforced upstream by the drift listener's debounce; Run itself assumes the
// attempt is legitimate and only decides its outcome.
func (f *Flow) Run(ctx context.Context, severity float64, triggerID, season, circuit string) {
	attempt, err := f.attempts.Create(triggerID, models.AttemptRunning)
	if err != nil {
		f.logger.Error("attempt_create_failed", zap.String("trigger_id", triggerID), zap.Error(err))
		attempt = nil
	}

	transition := func(status models.AttemptStatus, reason string) {
		if attempt == nil {
			return
		}
		if err := f.attempts.Transition(attempt.ID, status, reason); err != nil {
			f.logger.Error("attempt_transition_failed",
				zap.String("trigger_id", triggerID), zap.Error(err))
		}
	}

	if !f.optimizer.ShouldTrigger(ctx, severity, triggerID) {
		transition(models.AttemptRejected, "schedule_constraints")
		f.notifier.Emit(notify.EventRetrainingSkipped, map[string]any{
			"trigger_id": triggerID,
			"reason":     "schedule_constraints",
		})
		return
	}

	ready, sessions, details, err := f.readiness.CheckLatest(ctx)
	if err != nil || !ready {
		// No candidate exists yet, so there is nothing to roll back.
		transition(models.AttemptFailed, "data_not_ready")
		if err != nil {
			f.logger.Error("data_readiness_check_failed", zap.Error(err))
		}
		f.notifier.Emit(notify.EventDataNotReady, map[string]any{
			"trigger_id": triggerID,
			"details":    details,
		})
		return
	}
	f.logger.Info("data_ready",
		zap.String("trigger_id", triggerID), zap.Int("sessions", len(sessions)))

	candidate, err := f.trainer.Train(ctx, sessions)
	if err != nil {
		transition(models.AttemptFailed, "training_failed")
		f.logger.Error("training_failed", zap.String("trigger_id", triggerID), zap.Error(err))
		f.notifier.Emit(notify.EventTrainingFailed, map[string]any{
			"trigger_id": triggerID,
			"error":      err.Error(),
		})
		return
	}

	slices, err := f.slices.EvalSlices(ctx)
	if err != nil {
		transition(models.AttemptFailed, "eval_data_unavailable")
		f.logger.Error("eval_slices_unavailable", zap.Error(err))
		f.notifier.Emit(notify.EventDataNotReady, map[string]any{
			"trigger_id": triggerID,
			"details":    map[string]any{"stage": "evaluation", "error": err.Error()},
		})
		return
	}

	gateRes := f.gate.Validate(ctx, candidate, slices)
	if !gateRes.Accepted {
		rolledBack := f.rollback.AttemptRollback(ctx, "validation_failed")
		if rolledBack {
			transition(models.AttemptRolledBack, gateRes.Reason)
		} else {
			transition(models.AttemptRejected, gateRes.Reason)
		}
		f.notifier.Emit(notify.EventValidationFailed, map[string]any{
			"trigger_id":  triggerID,
			"reason":      gateRes.Reason,
			"rolled_back": rolledBack,
		})
		return
	}
	transition(models.AttemptValidated, "")

	compareRes := f.comparator.Compare(ctx, candidate, slices)
	if !compareRes.Promote {
		rolledBack := f.rollback.AttemptRollback(ctx, "comparison_rejected")
		if rolledBack {
			transition(models.AttemptRolledBack, compareRes.Reason)
		} else {
			transition(models.AttemptRejected, compareRes.Reason)
		}
		f.notifier.Emit(notify.EventModelRollback, map[string]any{
			"trigger_id":  triggerID,
			"reason":      compareRes.Reason,
			"rolled_back": rolledBack,
		})
		return
	}
	transition(models.AttemptCompared, "")

	version := versioning.GenerateModelVersion(season, circuit, "drift", triggerID)
	if err := f.rollback.RegisterStable(candidate.RunID, version); err != nil {
		// Promotion without a stable record would leave nothing to roll back
		// to; re-promote the previous stable model instead of promoting
		// blindly.
		f.logger.Error("stable_record_write_failed", zap.Error(err))
		rolledBack := f.rollback.AttemptRollback(ctx, "stable_record_write_failed")
		transition(models.AttemptFailed, "stable_record_write_failed")
		f.notifier.Emit(notify.EventModelRollback, map[string]any{
			"trigger_id":  triggerID,
			"reason":      "stable_record_write_failed",
			"rolled_back": rolledBack,
		})
		return
	}

	transition(models.AttemptPromoted, "")
	metrics.Promotions.Inc()
	f.notifier.Emit(notify.EventModelPromoted, map[string]any{
		"trigger_id": triggerID,
		"run_id":     candidate.RunID,
		"version":    version,
	})
}
