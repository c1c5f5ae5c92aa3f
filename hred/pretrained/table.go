// Package pretrained loads pretrained word-embedding tables.
package pretrained

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension does not match table")
	ErrEmptyTable        = errors.New("pretrained table has no vectors")
)

// Table maps tokens to fixed-length vectors. Vectors are stored in one
// contiguous backing slice in insertion (file) order.
type Table struct {
	dims  int
	words []string
	index map[string]int
	data  []float32
}

// NewTable returns an empty table of the given dimensionality.
func NewTable(dims int) *Table {
	return &Table{dims: dims, index: make(map[string]int)}
}

// Dimensions returns the vector length.
func (t *Table) Dimensions() int { return t.dims }

// Len returns the number of distinct words.
func (t *Table) Len() int { return len(t.words) }

// Words returns the words in file order. The slice must not be modified.
func (t *Table) Words() []string { return t.words }

// Add appends a vector. The first occurrence of a word wins.
func (t *Table) Add(word string, vec []float32) error {
	if len(vec) != t.dims {
		return fmt.Errorf("%w: %q has %d, want %d", ErrDimensionMismatch, word, len(vec), t.dims)
	}
	if _, ok := t.index[word]; ok {
		return nil
	}
	t.index[word] = len(t.words)
	t.words = append(t.words, word)
	t.data = append(t.data, vec...)
	return nil
}

// Lookup returns the vector for word. The returned slice aliases the table.
func (t *Table) Lookup(word string) ([]float32, bool) {
	i, ok := t.index[word]
	if !ok {
		return nil, false
	}
	return t.data[i*t.dims : (i+1)*t.dims : (i+1)*t.dims], true
}

// Contains reports whether word has a vector.
func (t *Table) Contains(word string) bool {
	_, ok := t.index[word]
	return ok
}
