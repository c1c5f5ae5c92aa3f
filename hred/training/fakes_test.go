package training

import (
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/hred-go/hred/config"
)

// fakeModel returns trainCosts in order (repeating the last one) and one
// validation cost per round, scaled by the predictions in each batch.
type fakeModel struct {
	mu         sync.Mutex
	trainCosts []float64
	validCosts []float64
	trainCalls int
	evalRounds int
	saved      []string
	loadedPath string
	loadedIgn  []string
}

func (m *fakeModel) TrainBatch(b *Batch) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := 1.0
	if len(m.trainCosts) > 0 {
		c = m.trainCosts[min(m.trainCalls, len(m.trainCosts)-1)]
	}
	m.trainCalls++
	return Result{Cost: c * float64(b.NumPreds), KLDivergence: 0.1, PosteriorMeanVariance: 0.2}, nil
}

func (m *fakeModel) EvalBatch(b *Batch) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.validCosts[min(m.evalRounds, len(m.validCosts)-1)]
	if b.Data == "last" {
		m.evalRounds++
	}
	return Result{Cost: c * float64(b.NumPreds)}, nil
}

func (m *fakeModel) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, path)
	return os.WriteFile(path, []byte("params"), 0o644)
}

func (m *fakeModel) Load(path string, ignore []string) error {
	m.loadedPath, m.loadedIgn = path, ignore
	return nil
}

func (m *fakeModel) ParamNorms() map[string]float64 {
	return map[string]float64{"W_emb": 1.5}
}

type sliceIterator struct {
	batches []*Batch
	pos     int
	starts  int
}

func (it *sliceIterator) Start() error {
	it.pos = 0
	it.starts++
	return nil
}

func (it *sliceIterator) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.batches) {
		return nil, nil
	}
	b := it.batches[it.pos]
	it.pos++
	return b, nil
}

func trainBatches(n int) *sliceIterator {
	it := &sliceIterator{}
	for i := 0; i < n; i++ {
		it.batches = append(it.batches, &Batch{NumPreds: 10, NumDialogues: 2, EndOfDialogue: true})
	}
	return it
}

// validBatches ends every round with a batch tagged "last".
func validBatches() *sliceIterator {
	return &sliceIterator{batches: []*Batch{
		{NumPreds: 10, NumDialogues: 1},
		{NumPreds: 10, NumDialogues: 1, Data: "last"},
	}}
}

func testState(dir string) State {
	return State{TrainingConfig: config.TrainingConfig{
		Prefix:          "model_",
		SaveDir:         dir,
		Seed:            1234,
		Patience:        1,
		LoopIters:       1000,
		TimeStopMinutes: 60,
		TrainFreq:       1,
		ValidFreq:       2,
		SampleFreq:      3,
		CostThreshold:   1.0,
	}}
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

var nan = math.NaN()
