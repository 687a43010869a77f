// Package scheduler applies business-level gating on top of the listener's
// debounce: a severity floor, a coarser cooldown and a per-rolling-window cap
// on high-traffic days. It keeps its own persisted retrain log so the two
// gates stay independent.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/internal/ledger"
)

// Optimizer decides whether a retraining attempt may proceed.
type Optimizer struct {
	cfg    config.OptimizerConfig
	logger *zap.Logger
	log    *ledger.RetrainLog
	days   map[time.Weekday]bool
	now    func() time.Time
}

// New builds an optimizer over the retrain log.
func New(cfg config.OptimizerConfig, log *ledger.RetrainLog, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		cfg:    cfg,
		logger: logger,
		log:    log,
		days:   cfg.HighTrafficWeekdays(),
		now:    time.Now,
	}
}

// WithClock overrides the optimizer's clock. Intended for tests.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	o.now = now
	return o
}

// ShouldTrigger applies the schedule rules in order; the first failing rule
// short-circuits to false. On approval the retrain is recorded immediately:
// an attempt later rejected by the gate or comparator still counts against
// the window cap, which bounds total computational spend.
// Ledger failures are treated as "not approved" (fail closed).
func (o *Optimizer) ShouldTrigger(ctx context.Context, severity float64, triggerID string) bool {
	if severity < o.cfg.SeverityFloor {
		o.logger.Info("optimizer_severity_too_low",
			zap.Float64("severity", severity), zap.Float64("floor", o.cfg.SeverityFloor))
		return false
	}

	now := o.now()

	last, has, err := o.log.Last()
	if err != nil {
		o.logger.Error("retrain_log_read_failed", zap.Error(err))
		return false
	}
	if has && now.Sub(last) < o.cfg.Cooldown {
		o.logger.Info("optimizer_cooldown_active", zap.Duration("since_last", now.Sub(last)))
		return false
	}

	if o.days[now.Weekday()] {
		recent, err := o.log.CountSince(now.Add(-o.cfg.RetrainCountingWindow))
		if err != nil {
			o.logger.Error("retrain_log_count_failed", zap.Error(err))
			return false
		}
		if recent >= int64(o.cfg.MaxRetrainsPerWindow) {
			o.logger.Info("optimizer_window_limit_reached",
				zap.Int64("recent", recent), zap.Int("cap", o.cfg.MaxRetrainsPerWindow))
			return false
		}
	}

	if err := o.log.Record(now); err != nil {
		o.logger.Error("retrain_log_write_failed", zap.Error(err))
		return false
	}

	o.logger.Info("optimizer_trigger_allowed", zap.String("trigger_id", triggerID))
	return true
}
