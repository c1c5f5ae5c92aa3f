package embedding

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Standardize rescales every column of m in place to zero mean and the
// given standard deviation. Constant columns become zero.
func Standardize(m *mat.Dense, stdDev float64) {
	n, d := m.Dims()
	if n == 0 {
		return
	}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, m)
		mean, variance := stat.PopMeanVariance(col, nil)
		scale := 0.0
		if sd := math.Sqrt(variance); sd > 0 {
			scale = stdDev / sd
		}
		for i := range col {
			col[i] = (col[i] - mean) * scale
		}
		m.SetCol(j, col)
	}
}

// RandomRows draws an n x d matrix from N(0, stdDev^2) using a generator
// seeded with seed, filled row-major. The same arguments always give the
// same matrix.
func RandomRows(n, d int, stdDev float64, seed int64) *mat.Dense {
	if n == 0 || d == 0 {
		return &mat.Dense{}
	}
	dist := distuv.Normal{
		Mu:    0,
		Sigma: stdDev,
		Src:   rand.NewPCG(uint64(seed), uint64(seed)),
	}
	data := make([]float64, n*d)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, d, data)
}
