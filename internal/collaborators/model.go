// Package collaborators holds the concrete adapters the binary wires behind
// the flow's collaborator interfaces: data readiness, evaluation slice
// loading, external training and the model registry. The control plane never
// hosts a model runtime; models cross its boundary as precomputed prediction
// sets scored on the two evaluation slices.
package collaborators

import (
	"fmt"

	"github.com/apexflow/retrainctl/pkg/models"
)

// PrecomputedModel answers Predict calls from prediction sets recorded when
// the model was scored on the evaluation slices. Sets are keyed by slice
// name, so the hold-out and recent slices stay distinct even when they happen
// to have the same row count.
type PrecomputedModel struct {
	sets map[string][]float64
}

// NewPrecomputedModel stores the recorded prediction sets under their slice
// names.
func NewPrecomputedModel(holdout, recent []float64) *PrecomputedModel {
	return &PrecomputedModel{sets: map[string][]float64{
		models.SliceHoldout: holdout,
		models.SliceRecent:  recent,
	}}
}

// Predict returns the recorded predictions for the named slice. The input row
// count must match the recorded set, otherwise the recording is stale.
func (m *PrecomputedModel) Predict(slice string, features [][]float64) ([]float64, error) {
	set, ok := m.sets[slice]
	if !ok {
		return nil, fmt.Errorf("no recorded predictions for slice %q", slice)
	}
	if len(set) != len(features) {
		return nil, fmt.Errorf("slice %q has %d recorded predictions, input has %d rows",
			slice, len(set), len(features))
	}
	return set, nil
}

var _ models.Model = (*PrecomputedModel)(nil)
