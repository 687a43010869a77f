package validation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/validation"
	"github.com/apexflow/retrainctl/pkg/models"
)

type staticProduction struct {
	model   models.Model
	version string
	err     error
}

func (s *staticProduction) LoadProduction(context.Context) (models.Model, string, error) {
	return s.model, s.version, s.err
}

// comparatorFixture: candidate predicts within 0.1 of truth on both slices,
// production within 1.0. MAE deltas are therefore about -0.9 everywhere.
func comparatorFixture() (*models.ModelCandidate, models.EvalSlices, models.Model) {
	yHoldout := []float64{10, 12, 14, 16, 18, 20}
	yRecent := []float64{30, 32, 34, 36, 38}

	offset := func(y []float64, d float64) []float64 {
		out := make([]float64, len(y))
		for i, v := range y {
			if i%2 == 0 {
				out[i] = v + d
			} else {
				out[i] = v - d
			}
		}
		return out
	}

	candidate := &models.ModelCandidate{
		Handle: &sliceModel{sets: map[string][]float64{
			models.SliceHoldout: offset(yHoldout, 0.1),
			models.SliceRecent:  offset(yRecent, 0.1),
		}},
		RunID: "run-cand",
	}
	production := &sliceModel{sets: map[string][]float64{
		models.SliceHoldout: offset(yHoldout, 1.0),
		models.SliceRecent:  offset(yRecent, 1.0),
	}}
	slices := models.EvalSlices{
		XHoldout: make([][]float64, len(yHoldout)),
		YHoldout: yHoldout,
		XRecent:  make([][]float64, len(yRecent)),
		YRecent:  yRecent,
	}
	return candidate, slices, production
}

func TestComparePromotesClearImprovement(t *testing.T) {
	candidate, slices, production := comparatorFixture()
	c := validation.NewComparator(0.0,
		&staticProduction{model: production, version: "7"}, zap.NewNop())

	res := c.Compare(context.Background(), candidate, slices)
	assert.True(t, res.Promote)
	assert.Equal(t, "7", res.ProductionVersion)
	assert.Negative(t, res.Deltas["holdout"].MAE)
	assert.Negative(t, res.Deltas["recent"].RMSE)
}

func TestCompareRejectsBelowThreshold(t *testing.T) {
	candidate, slices, production := comparatorFixture()
	// Candidate improves by ~0.9; demand a full 2.0 improvement.
	c := validation.NewComparator(2.0,
		&staticProduction{model: production, version: "7"}, zap.NewNop())

	res := c.Compare(context.Background(), candidate, slices)
	assert.False(t, res.Promote)
	assert.NotEmpty(t, res.Reason)
}

func TestCompareCannotPromoteWithoutProduction(t *testing.T) {
	candidate, slices, _ := comparatorFixture()
	c := validation.NewComparator(0.0,
		&staticProduction{err: errors.New("no production model")}, zap.NewNop())

	res := c.Compare(context.Background(), candidate, slices)
	assert.False(t, res.Promote)
	assert.Equal(t, "production model unavailable", res.Reason)
}
