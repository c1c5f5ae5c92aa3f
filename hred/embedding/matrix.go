// Package embedding builds the initial word-embedding matrix of the dialogue
// model from a vocabulary and a pretrained embedding table.
package embedding

import (
	"fmt"

	roaring "github.com/RoaringBitmap/roaring"
	"gonum.org/v1/gonum/mat"
)

// Matrix is the builder output: one row per vocabulary id, plus the set of
// rows that were randomly initialised rather than derived from pretrained
// vectors. The two are always persisted together.
type Matrix struct {
	Weights *mat.Dense
	// NonPretrained holds the ids of randomly initialised rows.
	NonPretrained *roaring.Bitmap
}

// Dims returns rows and columns of the weight matrix.
func (m *Matrix) Dims() (int, int) { return m.Weights.Dims() }

// IsPretrained reports whether row id came from the pretrained table.
func (m *Matrix) IsPretrained(id int) bool {
	return !m.NonPretrained.Contains(uint32(id))
}

// Mask expands NonPretrained into a matrix shaped like Weights with ones on
// randomly initialised rows and zeros elsewhere.
func (m *Matrix) Mask() *mat.Dense {
	rows, cols := m.Dims()
	mask := mat.NewDense(rows, cols, nil)
	ones := make([]float64, cols)
	for i := range ones {
		ones[i] = 1
	}
	it := m.NonPretrained.Iterator()
	for it.HasNext() {
		mask.SetRow(int(it.Next()), ones)
	}
	return mask
}

// Validate checks that every mask id addresses a weight row.
func (m *Matrix) Validate() error {
	if m.Weights == nil || m.NonPretrained == nil {
		return fmt.Errorf("%w: missing weights or mask", ErrCorruptMatrix)
	}
	rows, _ := m.Dims()
	if !m.NonPretrained.IsEmpty() && int(m.NonPretrained.Maximum()) >= rows {
		return fmt.Errorf("%w: mask row %d outside %d rows", ErrCorruptMatrix, m.NonPretrained.Maximum(), rows)
	}
	return nil
}
