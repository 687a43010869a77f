package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexflow/retrainctl/internal/validation"
)

func TestSliceMetrics(t *testing.T) {
	yTrue := []float64{1, 2, 3, 4}
	yPred := []float64{1.5, 2.5, 2.5, 4.5}

	m, err := validation.SliceMetrics(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.MAE, 1e-9)
	assert.InDelta(t, 0.5, m.RMSE, 1e-9)
}

func TestSliceMetricsLengthMismatch(t *testing.T) {
	_, err := validation.SliceMetrics([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestPairedTTestDetectsShift(t *testing.T) {
	a := []float64{10.1, 12.2, 13.9, 16.1, 18.0, 19.8}
	b := []float64{11.2, 13.4, 14.9, 17.4, 18.9, 20.9}

	tStat, p, err := validation.PairedTTest(a, b)
	require.NoError(t, err)
	assert.Negative(t, tStat)
	assert.Less(t, p, 0.01)
}

func TestPairedTTestNoDifference(t *testing.T) {
	a := []float64{10, 12, 14, 16, 18, 20}
	b := []float64{10.3, 11.8, 14.2, 15.7, 18.3, 19.7}

	_, p, err := validation.PairedTTest(a, b)
	require.NoError(t, err)
	// Differences hover around zero; nothing significant here.
	assert.Greater(t, p, 0.5)
}

func TestPairedTTestRejectsDegenerateInput(t *testing.T) {
	_, _, err := validation.PairedTTest([]float64{1, 2}, []float64{1})
	assert.Error(t, err)

	_, _, err = validation.PairedTTest([]float64{1}, []float64{2})
	assert.Error(t, err)

	// Constant differences have zero variance; the statistic is undefined.
	_, _, err = validation.PairedTTest([]float64{1, 2, 3}, []float64{2, 3, 4})
	assert.Error(t, err)
}
