package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestCheckDimensions(t *testing.T) {
	tests := []struct {
		name        string
		raw, target int
		wantErr     bool
	}{
		{"larger raw", 300, 50, false},
		{"equal", 50, 50, false},
		{"smaller raw", 20, 50, true},
		{"zero target", 300, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDimensions(tt.raw, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDimensionMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReduceEqualDimsCopies(t *testing.T) {
	raw := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	out, err := Reduce(raw, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(raw, out))

	out.Set(0, 0, 99)
	assert.Equal(t, 1.0, raw.At(0, 0))
}

func TestReduceOrdersComponentsByVariance(t *testing.T) {
	// points spread mostly along x, a little along y, not at all along z
	raw := mat.NewDense(6, 3, []float64{
		-10, 1, 5,
		-6, -1, 5,
		-2, 0, 5,
		2, 0, 5,
		6, -1, 5,
		10, 1, 5,
	})
	out, err := Reduce(raw, 2)
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 2, cols)

	_, v0 := stat.PopMeanVariance(mat.Col(nil, 0, out), nil)
	_, v1 := stat.PopMeanVariance(mat.Col(nil, 1, out), nil)
	assert.Greater(t, v0, v1)

	// the leading component is the x axis with a positive sign
	assert.InDelta(t, -10, out.At(0, 0), 1e-6)
	assert.InDelta(t, 10, out.At(5, 0), 1e-6)
}

func TestReduceFewerRowsThanTarget(t *testing.T) {
	raw := mat.NewDense(2, 6, []float64{
		1, 0, 0, 2, 0, 0,
		0, 1, 0, 0, 3, 0,
	})
	out, err := Reduce(raw, 4)
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 4, cols)
	for j := 2; j < 4; j++ {
		assert.InDeltaSlice(t, []float64{0, 0}, mat.Col(nil, j, out), 1e-9)
	}
}

func TestReduceErrors(t *testing.T) {
	_, err := Reduce(mat.NewDense(2, 3, nil), 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStandardize(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
		4, 7,
	})
	Standardize(m, 0.5)

	mean, variance := stat.PopMeanVariance(mat.Col(nil, 0, m), nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 0.5, math.Sqrt(variance), 1e-12)

	// constant column
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Col(nil, 1, m))
}

func TestRandomRows(t *testing.T) {
	a := RandomRows(5, 4, 0.01, 123456)
	b := RandomRows(5, 4, 0.01, 123456)
	c := RandomRows(5, 4, 0.01, 654321)

	assert.True(t, mat.Equal(a, b))
	assert.False(t, mat.Equal(a, c))

	// rows are drawn row-major, so a shorter draw is a prefix
	prefix := RandomRows(2, 4, 0.01, 123456)
	assert.Equal(t, mat.Row(nil, 1, a), mat.Row(nil, 1, prefix))

	empty := RandomRows(0, 4, 0.01, 1)
	assert.True(t, empty.IsEmpty())
}
