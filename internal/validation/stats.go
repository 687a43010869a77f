package validation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/apexflow/retrainctl/pkg/models"
)

var (
	errLengthMismatch = errors.New("sample length mismatch")
	errTooFewSamples  = errors.New("need at least two paired samples")
	errZeroVariance   = errors.New("paired differences have zero variance")
)

// MAE is the mean absolute error between truth and prediction.
func MAE(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// RMSE is the root mean squared error between truth and prediction.
func RMSE(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(yTrue)))
}

// SliceMetrics computes MAE and RMSE for one evaluation slice.
func SliceMetrics(yTrue, yPred []float64) (models.SliceMetrics, error) {
	if len(yTrue) != len(yPred) {
		return models.SliceMetrics{}, errLengthMismatch
	}
	if len(yTrue) == 0 {
		return models.SliceMetrics{}, errTooFewSamples
	}
	return models.SliceMetrics{
		MAE:  MAE(yTrue, yPred),
		RMSE: RMSE(yTrue, yPred),
	}, nil
}

// PairedTTest runs a two-sided paired t-test on the two prediction series and
// returns the t statistic and p-value. Errors cover the cases the gate must
// reject on: mismatched lengths, too few samples, degenerate variance.
func PairedTTest(a, b []float64) (tStat, pValue float64, err error) {
	if len(a) != len(b) {
		return 0, 0, errLengthMismatch
	}
	n := len(a)
	if n < 2 {
		return 0, 0, errTooFewSamples
	}

	diffs := make([]float64, n)
	for i := range a {
		diffs[i] = a[i] - b[i]
	}
	mean := stat.Mean(diffs, nil)
	sd := stat.StdDev(diffs, nil)
	if sd == 0 {
		return 0, 0, errZeroVariance
	}

	tStat = mean / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	pValue = 2 * dist.Survival(math.Abs(tStat))
	return tStat, pValue, nil
}
