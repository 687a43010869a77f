// Package listener implements drift-alert intake: severity gating, per-trigger
// debounce, global cooldown and queue-capacity checks, with durable state in
// the trigger ledger so behavior survives process restart.
package listener

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/internal/ledger"
	"github.com/apexflow/retrainctl/internal/resource"
	"github.com/apexflow/retrainctl/pkg/metrics"
)

// JobQueue is the slice of the resource manager the listener needs.
type JobQueue interface {
	Full() bool
	SubmitJob(job *resource.Job) bool
}

// JobFactory builds the training job for a forwarded alert. The wiring layer
// supplies one that invokes the orchestrating flow in-process.
type JobFactory func(severity float64, triggerID string) *resource.Job

// Listener decides whether an incoming drift alert becomes a retraining job.
type Listener struct {
	cfg     config.ListenerConfig
	logger  *zap.Logger
	ledger  *ledger.TriggerLedger
	queue   JobQueue
	newJob  JobFactory
	now     func() time.Time
}

// New builds a listener.
func New(cfg config.ListenerConfig, triggers *ledger.TriggerLedger, queue JobQueue, newJob JobFactory, logger *zap.Logger) *Listener {
	return &Listener{
		cfg:    cfg,
		logger: logger,
		ledger: triggers,
		queue:  queue,
		newJob: newJob,
		now:    time.Now,
	}
}

// WithClock overrides the listener's clock. Intended for tests.
func (l *Listener) WithClock(now func() time.Time) *Listener {
	l.now = now
	return l
}

// HandleAlert processes one drift alert and returns true when a retraining
// job was enqueued. All rejections are soft: they log the reason and return
// false. Ledger write failures also return false (fail closed) so a broken
// ledger can never cause duplicate or unbounded retraining.
func (l *Listener) HandleAlert(ctx context.Context, severity float64, triggerID string) bool {
	metrics.AlertsReceived.Inc()
	l.logger.Debug("drift_alert_received",
		zap.Float64("severity", severity), zap.String("trigger_id", triggerID))

	if severity < l.cfg.SeverityThreshold {
		l.logger.Info("drift_below_threshold",
			zap.Float64("severity", severity), zap.Float64("threshold", l.cfg.SeverityThreshold))
		return false
	}

	now := l.now()

	lastSeen, seen, err := l.ledger.LastSeen(triggerID)
	if err != nil {
		l.logger.Error("trigger_ledger_read_failed", zap.String("trigger_id", triggerID), zap.Error(err))
		return false
	}
	if seen && now.Sub(lastSeen) < l.cfg.DebounceWindow {
		l.logger.Info("drift_debounced", zap.String("trigger_id", triggerID),
			zap.Duration("since_last", now.Sub(lastSeen)))
		return false
	}

	// Storm protection: minimum spacing between any two accepted jobs,
	// independent of the per-trigger debounce above.
	lastJob, hasJob, err := l.ledger.LastJobTime()
	if err != nil {
		l.logger.Error("trigger_ledger_read_failed", zap.Error(err))
		return false
	}
	if hasJob && now.Sub(lastJob) < l.cfg.CooldownWindow {
		l.logger.Info("retraining_cooldown_active", zap.Duration("since_last_job", now.Sub(lastJob)))
		return false
	}

	if l.queue.Full() {
		l.logger.Warn("retraining_queue_full", zap.String("trigger_id", triggerID))
		return false
	}

	// Persist before enqueuing so a transient enqueue failure cannot cause
	// the same trigger to be forwarded twice.
	if err := l.ledger.Touch(triggerID, now); err != nil {
		l.logger.Error("trigger_ledger_write_failed", zap.String("trigger_id", triggerID), zap.Error(err))
		return false
	}
	if err := l.ledger.SetLastJobTime(now); err != nil {
		l.logger.Error("trigger_ledger_write_failed", zap.Error(err))
		return false
	}

	job := l.newJob(severity, triggerID)
	if !l.queue.SubmitJob(job) {
		l.logger.Error("retraining_enqueue_failed", zap.String("trigger_id", triggerID))
		return false
	}

	l.logger.Info("retraining_job_enqueued",
		zap.String("trigger_id", triggerID), zap.Float64("severity", severity))
	metrics.AlertsForwarded.Inc()
	return true
}

// PriorityForSeverity maps drift severity onto a queue priority: the more
// severe the drift, the more urgent (lower) the priority value.
func PriorityForSeverity(severity float64) int {
	if severity >= 1 {
		return 0
	}
	if severity < 0 {
		severity = 0
	}
	return int((1 - severity) * 10)
}
