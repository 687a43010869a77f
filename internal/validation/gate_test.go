package validation_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/validation"
	"github.com/apexflow/retrainctl/pkg/models"
)

// sliceModel replays fixed predictions keyed by slice name.
type sliceModel struct {
	sets map[string][]float64
}

func (m *sliceModel) Predict(slice string, _ [][]float64) ([]float64, error) {
	return m.sets[slice], nil
}

type staticBaseline struct {
	baseline *validation.Baseline
	err      error
}

func (s *staticBaseline) Baseline(context.Context) (*validation.Baseline, error) {
	return s.baseline, s.err
}

// gateFixture builds a candidate that clearly beats a weak baseline on both
// slices, with enough spread in the paired differences to be significant.
func gateFixture() (*models.ModelCandidate, models.EvalSlices, *validation.Baseline) {
	yHoldout := []float64{10, 12, 14, 16, 18, 20}
	yRecent := []float64{30, 32, 34, 36, 38}

	candHoldout := []float64{10.1, 11.9, 14.1, 15.9, 18.1, 19.9}
	candRecent := []float64{30.1, 31.9, 34.1, 35.9, 38.1}

	baseHoldout := []float64{11.2, 13.1, 14.9, 17.3, 19.0, 21.2}
	baseRecent := []float64{31.1, 33.3, 34.9, 37.2, 39.1}

	candidate := &models.ModelCandidate{
		Handle: &sliceModel{sets: map[string][]float64{
			models.SliceHoldout: candHoldout,
			models.SliceRecent:  candRecent,
		}},
		RunID: "run-test",
	}
	slices := models.EvalSlices{
		XHoldout: make([][]float64, len(yHoldout)),
		YHoldout: yHoldout,
		XRecent:  make([][]float64, len(yRecent)),
		YRecent:  yRecent,
	}
	baseline := &validation.Baseline{
		Holdout: validation.SliceBaseline{
			Metrics:     models.SliceMetrics{MAE: 1.0, RMSE: 1.2},
			Predictions: baseHoldout,
		},
		Recent: validation.SliceBaseline{
			Metrics:     models.SliceMetrics{MAE: 1.0, RMSE: 1.2},
			Predictions: baseRecent,
		},
	}
	return candidate, slices, baseline
}

func TestGateAcceptsSignificantImprovement(t *testing.T) {
	candidate, slices, baseline := gateFixture()
	gate := validation.NewGate(0.05, &staticBaseline{baseline: baseline}, zap.NewNop())

	res := gate.Validate(context.Background(), candidate, slices)
	assert.True(t, res.Accepted)
	assert.True(t, res.Significant)
	assert.Less(t, res.PValues["holdout"], 0.05)
	assert.Less(t, res.PValues["recent"], 0.05)
	assert.Less(t, res.Candidate["holdout"].MAE, 1.0)
}

func TestGateRejectsWithoutBaseline(t *testing.T) {
	candidate, slices, _ := gateFixture()
	gate := validation.NewGate(0.05, &staticBaseline{err: os.ErrNotExist}, zap.NewNop())

	res := gate.Validate(context.Background(), candidate, slices)
	assert.False(t, res.Accepted)
	assert.Equal(t, "baseline metrics unavailable", res.Reason)
}

func TestGateRejectsOnPredictionLengthMismatch(t *testing.T) {
	candidate, slices, baseline := gateFixture()
	baseline.Holdout.Predictions = baseline.Holdout.Predictions[:2]
	gate := validation.NewGate(0.05, &staticBaseline{baseline: baseline}, zap.NewNop())

	res := gate.Validate(context.Background(), candidate, slices)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "t-test could not be performed")
}

func TestGateRejectsRegression(t *testing.T) {
	candidate, slices, baseline := gateFixture()
	// Baseline claims a lower MAE than the candidate achieves: no improvement.
	baseline.Holdout.Metrics.MAE = 0.01
	gate := validation.NewGate(0.05, &staticBaseline{baseline: baseline}, zap.NewNop())

	res := gate.Validate(context.Background(), candidate, slices)
	assert.False(t, res.Accepted)
	assert.False(t, res.Improvement["holdout"])
}

func TestFileBaselineSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baseline_metrics.json")

	_, _, baseline := gateFixture()
	raw, err := json.Marshal(baseline)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	src := &validation.FileBaselineSource{Path: path}
	got, err := src.Baseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, baseline.Holdout.Metrics, got.Holdout.Metrics)
	assert.Len(t, got.Recent.Predictions, len(baseline.Recent.Predictions))

	missing := &validation.FileBaselineSource{Path: filepath.Join(dir, "absent.json")}
	_, err = missing.Baseline(context.Background())
	assert.Error(t, err)
}
