// Package training drives the train / validate / checkpoint loop of the
// dialogue model. The model and its data iterators are external and are
// consumed through the interfaces below.
package training

import "context"

// Batch is one minibatch as produced by an Iterator. Data is opaque to the
// loop and handed unchanged to the model.
type Batch struct {
	// NumPreds is the number of word predictions the cost is summed over.
	NumPreds int
	// NumDialogues is the number of dialogues in the batch.
	NumDialogues int
	// EndOfDialogue is set when no dialogue in the batch continues into the
	// next one, so state can be reset safely before validating.
	EndOfDialogue bool
	Data          any
}

// Result holds the summed costs a model reports for one batch.
type Result struct {
	Cost                  float64
	KLDivergence          float64
	PosteriorMeanVariance float64
}

// Model is the trainable dialogue model.
type Model interface {
	TrainBatch(b *Batch) (Result, error)
	EvalBatch(b *Batch) (Result, error)
	Save(path string) error
	// Load restores parameters from path, leaving every parameter whose
	// name contains one of ignore at its fresh initialisation.
	Load(path string, ignore []string) error
}

// ParamNormer is implemented by models that can report the L2 norm of each
// parameter.
type ParamNormer interface {
	ParamNorms() map[string]float64
}

// Iterator yields batches. Next returns a nil batch once the data is
// exhausted; Start rewinds it.
type Iterator interface {
	Start() error
	Next(ctx context.Context) (*Batch, error)
}
