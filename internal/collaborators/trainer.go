package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/pkg/models"
)

// trainingOutput is the document the external training command writes: the
// run identity plus the candidate's predictions on both evaluation slices.
type trainingOutput struct {
	RunID              string                         `json:"run_id"`
	Metrics            map[string]models.SliceMetrics `json:"metrics"`
	HoldoutPredictions []float64                      `json:"holdout_predictions"`
	RecentPredictions  []float64                      `json:"recent_predictions"`
}

// ExecTrainer invokes an external training command. The command receives the
// session IDs as arguments, fits the model, scores it on the evaluation
// slices and writes a JSON result to OutputPath. Hyperparameter search and
// model fitting are entirely the command's concern.
type ExecTrainer struct {
	Command    string
	OutputPath string
	Logger     *zap.Logger
}

// Train runs the training command and loads the resulting candidate.
func (t *ExecTrainer) Train(ctx context.Context, sessionIDs []string) (*models.ModelCandidate, error) {
	if t.Command == "" {
		return nil, fmt.Errorf("no training command configured")
	}
	parts := strings.Fields(t.Command)
	args := append(parts[1:], sessionIDs...)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Env = append(cmd.Environ(), "RETRAINCTL_OUTPUT="+t.OutputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("training command: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(t.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("reading training output: %w", err)
	}
	var result trainingOutput
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parsing training output: %w", err)
	}
	if result.RunID == "" {
		return nil, fmt.Errorf("training output missing run_id")
	}

	t.Logger.Info("training_run_completed", zap.String("run_id", result.RunID))
	return &models.ModelCandidate{
		Handle:  NewPrecomputedModel(result.HoldoutPredictions, result.RecentPredictions),
		RunID:   result.RunID,
		Metrics: result.Metrics,
	}, nil
}
