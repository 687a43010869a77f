// Package models defines the shared data model of the retraining control
// plane: drift alerts, retrain attempts, training jobs, model candidates and
// the persisted ledger rows.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus tracks a retraining attempt through the orchestrating flow.
// Terminal states are Rejected, Promoted, RolledBack and Failed.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptQueued     AttemptStatus = "queued"
	AttemptRejected   AttemptStatus = "rejected"
	AttemptRunning    AttemptStatus = "running"
	AttemptValidated  AttemptStatus = "validated"
	AttemptCompared   AttemptStatus = "compared"
	AttemptPromoted   AttemptStatus = "promoted"
	AttemptRolledBack AttemptStatus = "rolled_back"
	AttemptFailed     AttemptStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptRejected, AttemptPromoted, AttemptRolledBack, AttemptFailed:
		return true
	}
	return false
}

// DriftAlert is the external signal that live data has drifted away from the
// training-time distribution. Alerts are immutable; the control plane only
// reads them.
type DriftAlert struct {
	FeatureID  string    `json:"feature_id"`
	Severity   float64   `json:"severity"` // in [0, 1]
	TriggerID  string    `json:"trigger_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// RetrainAttempt is one pass through the flow for a forwarded alert.
type RetrainAttempt struct {
	ID         uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	TriggerID  string        `json:"trigger_id" gorm:"index"`
	Status     AttemptStatus `json:"status"`
	Reason     string        `json:"reason"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ResourceRequirement declares what a training job needs admitted.
type ResourceRequirement struct {
	CPUCores int `json:"cpu_cores"`
	MemoryMB int `json:"memory_mb"`
}

// SliceMetrics holds regression error metrics for one evaluation slice.
type SliceMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// Canonical evaluation slice names. Every prediction request names the slice
// it scores, so replayed prediction sets can never be confused even when the
// two slices have the same row count.
const (
	SliceHoldout = "holdout"
	SliceRecent  = "recent"
)

// ModelCandidate is a freshly trained, not-yet-promoted model. The handle is
// opaque to the control plane; Gate and Comparator only call Predict through
// it and read the slice metrics.
type ModelCandidate struct {
	Handle  Model                   `json:"-"`
	RunID   string                  `json:"run_id"`
	Metrics map[string]SliceMetrics `json:"metrics"` // keyed by slice name
}

// Model is the minimal surface the control plane needs from a fitted model.
// Predict is always asked for a named evaluation slice.
type Model interface {
	Predict(slice string, features [][]float64) ([]float64, error)
}

// StableModelRecord identifies the last model confirmed stable in production.
// At most one live row exists; promotion overwrites, never appends.
type StableModelRecord struct {
	RunID      string    `json:"run_id"`
	Version    string    `json:"version"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EvalSlices carries the two evaluation datasets the Gate and Comparator
// score candidates on: a stable hold-out set and the most recent unseen data.
type EvalSlices struct {
	XHoldout [][]float64
	YHoldout []float64
	XRecent  [][]float64
	YRecent  []float64
}
