// Package validation holds the two safety checks between a trained candidate
// and production: the pre-deployment validation gate and the champion versus
// challenger performance comparator. Both are deliberately conservative and
// fail closed on any ambiguity, since a false promotion costs more than a
// false rejection here.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/pkg/models"
)

// SliceBaseline carries the production model's recorded metrics and raw
// predictions for one evaluation slice.
type SliceBaseline struct {
	Metrics     models.SliceMetrics `json:"metrics"`
	Predictions []float64           `json:"predictions"`
}

// Baseline is the full production baseline for both slices.
type Baseline struct {
	Holdout SliceBaseline `json:"holdout"`
	Recent  SliceBaseline `json:"recent"`
}

// BaselineSource supplies the production baseline. A missing baseline is an
// automatic gate rejection, never an error that aborts the pipeline.
type BaselineSource interface {
	Baseline(ctx context.Context) (*Baseline, error)
}

// FileBaselineSource reads the baseline from a JSON document produced by the
// previous deployment step.
type FileBaselineSource struct {
	Path string
}

// Baseline loads and parses the baseline file.
func (s *FileBaselineSource) Baseline(_ context.Context) (*Baseline, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline %s: %w", s.Path, err)
	}
	var b Baseline
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parsing baseline %s: %w", s.Path, err)
	}
	return &b, nil
}

// GateResult is the gate's decision plus everything needed for audit.
type GateResult struct {
	Accepted    bool                            `json:"accepted"`
	Reason      string                          `json:"reason,omitempty"`
	Candidate   map[string]models.SliceMetrics  `json:"candidate"`
	Baseline    map[string]models.SliceMetrics  `json:"baseline,omitempty"`
	PValues     map[string]float64              `json:"p_values,omitempty"`
	Improvement map[string]bool                 `json:"improvement,omitempty"`
	Significant bool                            `json:"significant"`
}

// Gate is the strict pre-deployment validation check.
type Gate struct {
	significanceLevel float64
	baselines         BaselineSource
	logger            *zap.Logger
}

// NewGate builds a gate. A non-positive significance level falls back to 0.05.
func NewGate(significanceLevel float64, baselines BaselineSource, logger *zap.Logger) *Gate {
	if significanceLevel <= 0 {
		significanceLevel = 0.05
	}
	return &Gate{
		significanceLevel: significanceLevel,
		baselines:         baselines,
		logger:            logger,
	}
}

// Validate scores the candidate on the hold-out and recent slices and accepts
// only when MAE improves over the baseline on both slices AND a paired
// two-sided t-test against the baseline predictions is significant on both.
// Every failure mode is a rejection value, never a panic or error return.
func (g *Gate) Validate(ctx context.Context, candidate *models.ModelCandidate, slices models.EvalSlices) GateResult {
	res := GateResult{
		Candidate:   map[string]models.SliceMetrics{},
		Baseline:    map[string]models.SliceMetrics{},
		PValues:     map[string]float64{},
		Improvement: map[string]bool{},
	}

	holdoutPred, err := candidate.Handle.Predict(models.SliceHoldout, slices.XHoldout)
	if err != nil {
		return g.reject(res, fmt.Sprintf("holdout prediction failed: %v", err))
	}
	recentPred, err := candidate.Handle.Predict(models.SliceRecent, slices.XRecent)
	if err != nil {
		return g.reject(res, fmt.Sprintf("recent prediction failed: %v", err))
	}

	candHoldout, err := SliceMetrics(slices.YHoldout, holdoutPred)
	if err != nil {
		return g.reject(res, fmt.Sprintf("holdout metrics: %v", err))
	}
	candRecent, err := SliceMetrics(slices.YRecent, recentPred)
	if err != nil {
		return g.reject(res, fmt.Sprintf("recent metrics: %v", err))
	}
	res.Candidate["holdout"] = candHoldout
	res.Candidate["recent"] = candRecent

	baseline, err := g.baselines.Baseline(ctx)
	if err != nil || baseline == nil {
		g.logger.Warn("baseline_metrics_missing", zap.Error(err))
		return g.reject(res, "baseline metrics unavailable")
	}
	res.Baseline["holdout"] = baseline.Holdout.Metrics
	res.Baseline["recent"] = baseline.Recent.Metrics

	_, pHoldout, err := PairedTTest(holdoutPred, baseline.Holdout.Predictions)
	if err != nil {
		g.logger.Warn("gate_ttest_unavailable", zap.String("slice", "holdout"), zap.Error(err))
		return g.reject(res, fmt.Sprintf("t-test could not be performed: %v", err))
	}
	_, pRecent, err := PairedTTest(recentPred, baseline.Recent.Predictions)
	if err != nil {
		g.logger.Warn("gate_ttest_unavailable", zap.String("slice", "recent"), zap.Error(err))
		return g.reject(res, fmt.Sprintf("t-test could not be performed: %v", err))
	}
	res.PValues["holdout"] = pHoldout
	res.PValues["recent"] = pRecent

	res.Improvement["holdout"] = candHoldout.MAE < baseline.Holdout.Metrics.MAE
	res.Improvement["recent"] = candRecent.MAE < baseline.Recent.Metrics.MAE
	res.Significant = pHoldout < g.significanceLevel && pRecent < g.significanceLevel

	res.Accepted = res.Improvement["holdout"] && res.Improvement["recent"] && res.Significant
	if res.Accepted {
		g.logger.Info("validation_gate_passed",
			zap.Float64("p_holdout", pHoldout), zap.Float64("p_recent", pRecent))
	} else {
		res.Reason = "no statistically significant non-regressing improvement"
		g.logger.Warn("validation_gate_failed",
			zap.Bool("improvement_holdout", res.Improvement["holdout"]),
			zap.Bool("improvement_recent", res.Improvement["recent"]),
			zap.Bool("significant", res.Significant))
	}
	return res
}

func (g *Gate) reject(res GateResult, reason string) GateResult {
	res.Accepted = false
	res.Reason = reason
	g.logger.Warn("validation_gate_rejected", zap.String("reason", reason))
	return res
}
