package collaborators

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/apexflow/retrainctl/pkg/models"
)

// CSVSliceProvider loads the hold-out and recent evaluation slices from four
// CSV files (features and targets per slice), the layout the validation data
// pipeline exports.
type CSVSliceProvider struct {
	HoldoutX string
	HoldoutY string
	RecentX  string
	RecentY  string
}

// EvalSlices reads all four files. Any missing or malformed file is an error;
// the flow treats that as data-not-ready.
func (p *CSVSliceProvider) EvalSlices(_ context.Context) (models.EvalSlices, error) {
	var slices models.EvalSlices
	var err error

	if slices.XHoldout, err = readMatrix(p.HoldoutX); err != nil {
		return models.EvalSlices{}, err
	}
	if slices.YHoldout, err = readVector(p.HoldoutY); err != nil {
		return models.EvalSlices{}, err
	}
	if slices.XRecent, err = readMatrix(p.RecentX); err != nil {
		return models.EvalSlices{}, err
	}
	if slices.YRecent, err = readVector(p.RecentY); err != nil {
		return models.EvalSlices{}, err
	}

	if len(slices.XHoldout) != len(slices.YHoldout) || len(slices.XRecent) != len(slices.YRecent) {
		return models.EvalSlices{}, fmt.Errorf("feature/target row count mismatch")
	}
	return slices, nil
}

func readMatrix(path string) ([][]float64, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	matrix := make([][]float64, 0, len(rows))
	for i, row := range rows {
		vals := make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d col %d: %w", path, i+2, j+1, err)
			}
			vals[j] = v
		}
		matrix = append(matrix, vals)
	}
	return matrix, nil
}

func readVector(path string) ([]float64, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	vector := make([]float64, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		vector = append(vector, v)
	}
	return vector, nil
}

// readCSV returns the data rows of a headered CSV file.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	return all[1:], nil
}
