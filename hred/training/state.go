package training

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/hred-go/hred/config"
)

// State is the persisted training state: the configured prototype plus the
// id of the run it belongs to.
type State struct {
	RunID string `json:"runId"`
	config.TrainingConfig
}

// NewState returns the prototype state for cfg with no run id assigned.
func NewState(cfg config.TrainingConfig) *State {
	return &State{TrainingConfig: cfg}
}

func (s *State) validate() error {
	switch {
	case s.TrainFreq <= 0:
		return fmt.Errorf("%w: trainFreq must be positive", ErrInvalidState)
	case s.ValidFreq <= 0:
		return fmt.Errorf("%w: validFreq must be positive", ErrInvalidState)
	case s.TimeStopMinutes <= 0:
		return fmt.Errorf("%w: timeStopMinutes must be positive", ErrInvalidState)
	case s.LoopIters < 0:
		return fmt.Errorf("%w: loopIters must not be negative", ErrInvalidState)
	case s.SaveDir == "":
		return fmt.Errorf("%w: saveDir is empty", ErrInvalidState)
	}
	return nil
}

// Measure names recorded once per validation round.
const (
	MeasureTrainCost                  = "train_cost"
	MeasureTrainMisclass              = "train_misclass"
	MeasureTrainKLDivergenceCost      = "train_kl_divergence_cost"
	MeasureTrainPosteriorMeanVariance = "train_posterior_mean_variance"
	MeasureValidCost                  = "valid_cost"
	MeasureValidMisclass              = "valid_misclass"
	MeasureValidPosteriorMeanVariance = "valid_posterior_mean_variance"
	MeasureValidKLDivergenceCost      = "valid_kl_divergence_cost"
	MeasureValidEMI                   = "valid_emi"
)

var measures = []string{
	MeasureTrainCost,
	MeasureTrainMisclass,
	MeasureTrainKLDivergenceCost,
	MeasureTrainPosteriorMeanVariance,
	MeasureValidCost,
	MeasureValidMisclass,
	MeasureValidPosteriorMeanVariance,
	MeasureValidKLDivergenceCost,
	MeasureValidEMI,
}

// Timings maps each measure to its per-validation-round series.
type Timings map[string][]float64

// NewTimings returns empty series for every measure.
func NewTimings() Timings {
	t := make(Timings, len(measures))
	for _, m := range measures {
		t[m] = []float64{}
	}
	return t
}

// Best returns the minimum of a series and false when it is empty.
func (t Timings) Best(measure string) (float64, bool) {
	series := t[measure]
	if len(series) == 0 {
		return 0, false
	}
	best := series[0]
	for _, v := range series[1:] {
		best = min(best, v)
	}
	return best, true
}

// Last returns the most recent value of a series and false when it is empty.
func (t Timings) Last(measure string) (float64, bool) {
	series := t[measure]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// loadTimings reads a timings file, adding any measure it lacks.
func loadTimings(path string) (Timings, error) {
	t := NewTimings()
	var stored Timings
	if err := readJSON(path, &stored); err != nil {
		return nil, err
	}
	for k, v := range stored {
		if v == nil {
			v = []float64{}
		}
		t[k] = v
	}
	return t, nil
}
