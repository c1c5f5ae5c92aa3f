// Package db records training checkpoints in a run registry so the best
// and latest checkpoints of a run can be found without scanning saveDir.
package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoCheckpoints = errors.New("no checkpoints recorded for run")
	ErrInvalidRecord = errors.New("invalid checkpoint record")
)

// Kind tells which save path produced a checkpoint.
type Kind string

const (
	KindBest Kind = "best"
	KindStep Kind = "step"
	KindAuto Kind = "auto"
)

// Checkpoint is one saved model/state/timings triple.
type Checkpoint struct {
	ID        uuid.UUID
	RunID     string
	Kind      Kind
	Step      int
	ValidCost float64
	// Base is the path prefix the model.bin, state.json and timing.json
	// files share.
	Base    string
	SavedAt time.Time
}

func (c *Checkpoint) validate() error {
	switch {
	case c == nil:
		return ErrInvalidRecord
	case c.RunID == "":
		return errors.Join(ErrInvalidRecord, errors.New("empty run id"))
	case c.Base == "":
		return errors.Join(ErrInvalidRecord, errors.New("empty checkpoint path"))
	case c.Kind != KindBest && c.Kind != KindStep && c.Kind != KindAuto:
		return errors.Join(ErrInvalidRecord, errors.New("unknown kind "+string(c.Kind)))
	}
	return nil
}

// RunRegistry stores checkpoint records per run.
type RunRegistry interface {
	// RecordCheckpoint stores c, assigning an ID and timestamp when unset.
	RecordCheckpoint(c *Checkpoint) (uuid.UUID, error)
	// Checkpoints lists a run's checkpoints by step, oldest first.
	Checkpoints(runID string) ([]Checkpoint, error)
	// Best returns the checkpoint with the lowest validation cost.
	Best(runID string) (*Checkpoint, error)
	Close() error
}

// lessCost orders checkpoints by validation cost, then by step.
func lessCost(a, b *Checkpoint) bool {
	if a.ValidCost != b.ValidCost {
		return a.ValidCost < b.ValidCost
	}
	return a.Step < b.Step
}
