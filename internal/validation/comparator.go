package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/pkg/models"
)

// ProductionLoader supplies the model currently serving live predictions.
// Returning a nil model (or an error) means no production model exists, and
// the comparator then cannot promote: first deployment is handled by an
// out-of-band bootstrap, not by this core.
type ProductionLoader interface {
	LoadProduction(ctx context.Context) (models.Model, string, error)
}

// CompareResult is the promotion verdict plus the audited deltas.
type CompareResult struct {
	Promote           bool                           `json:"promote"`
	Reason            string                         `json:"reason,omitempty"`
	ProductionVersion string                         `json:"production_version,omitempty"`
	Candidate         map[string]models.SliceMetrics `json:"candidate"`
	Production        map[string]models.SliceMetrics `json:"production,omitempty"`
	Deltas            map[string]models.SliceMetrics `json:"deltas,omitempty"`
}

// Comparator scores an already-validated candidate against the production
// model on the same slices and issues a promote/reject verdict.
type Comparator struct {
	improvementThreshold float64
	production           ProductionLoader
	logger               *zap.Logger
}

// NewComparator builds a comparator.
func NewComparator(improvementThreshold float64, production ProductionLoader, logger *zap.Logger) *Comparator {
	return &Comparator{
		improvementThreshold: improvementThreshold,
		production:           production,
		logger:               logger,
	}
}

// Compare promotes only when candidate − production is negative and the
// absolute improvement exceeds the threshold for every metric on every slice.
// Like the gate, every failure mode is a rejection value.
func (c *Comparator) Compare(ctx context.Context, candidate *models.ModelCandidate, slices models.EvalSlices) CompareResult {
	res := CompareResult{
		Candidate:  map[string]models.SliceMetrics{},
		Production: map[string]models.SliceMetrics{},
		Deltas:     map[string]models.SliceMetrics{},
	}

	prod, version, err := c.production.LoadProduction(ctx)
	if err != nil || prod == nil {
		c.logger.Warn("comparison_abort_no_production_model", zap.Error(err))
		res.Reason = "production model unavailable"
		return res
	}
	res.ProductionVersion = version

	for slice, data := range map[string]struct {
		x [][]float64
		y []float64
	}{
		models.SliceHoldout: {slices.XHoldout, slices.YHoldout},
		models.SliceRecent:  {slices.XRecent, slices.YRecent},
	} {
		candMetrics, err := c.score(candidate.Handle, slice, data.x, data.y)
		if err != nil {
			res.Reason = fmt.Sprintf("candidate scoring on %s failed: %v", slice, err)
			c.logger.Warn("comparison_rejected", zap.String("reason", res.Reason))
			return res
		}
		prodMetrics, err := c.score(prod, slice, data.x, data.y)
		if err != nil {
			res.Reason = fmt.Sprintf("production scoring on %s failed: %v", slice, err)
			c.logger.Warn("comparison_rejected", zap.String("reason", res.Reason))
			return res
		}
		res.Candidate[slice] = candMetrics
		res.Production[slice] = prodMetrics
		res.Deltas[slice] = models.SliceMetrics{
			MAE:  candMetrics.MAE - prodMetrics.MAE,
			RMSE: candMetrics.RMSE - prodMetrics.RMSE,
		}
	}

	promote := true
	for _, delta := range res.Deltas {
		if delta.MAE >= -c.improvementThreshold || delta.RMSE >= -c.improvementThreshold {
			promote = false
			break
		}
	}
	res.Promote = promote
	if !promote {
		res.Reason = "candidate does not beat production by the improvement threshold"
	}

	decision := "reject"
	if promote {
		decision = "promote"
	}
	c.logger.Info("performance_comparison",
		zap.String("decision", decision),
		zap.String("prod_version", version),
		zap.Any("deltas", res.Deltas))
	return res
}

func (c *Comparator) score(m models.Model, slice string, x [][]float64, y []float64) (models.SliceMetrics, error) {
	pred, err := m.Predict(slice, x)
	if err != nil {
		return models.SliceMetrics{}, err
	}
	return SliceMetrics(y, pred)
}
