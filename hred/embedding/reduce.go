package embedding

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrDimensionMismatch = errors.New("pretrained dimensionality is smaller than the target dimensionality")
	ErrNoResolvedRows    = errors.New("no vocabulary token resolved to a pretrained vector")
	ErrPCAFailed         = errors.New("principal component analysis failed")
)

// CheckDimensions enforces raw >= target.
func CheckDimensions(raw, target int) error {
	if target <= 0 || raw < target {
		return fmt.Errorf("%w: raw %d, target %d", ErrDimensionMismatch, raw, target)
	}
	return nil
}

// Reduce projects the rows of raw onto their top target principal
// components. Rows are centred before projection. Equal dimensionality
// returns a copy untouched. When there are fewer rows than target the
// trailing components do not exist and stay zero.
func Reduce(raw *mat.Dense, target int) (*mat.Dense, error) {
	n, d := raw.Dims()
	if err := CheckDimensions(d, target); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoResolvedRows
	}
	if d == target {
		return mat.DenseCopyOf(raw), nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(raw, nil); !ok {
		return nil, fmt.Errorf("%w: %d rows of %d dims", ErrPCAFailed, n, d)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, k := vecs.Dims()
	use := min(k, target)
	flipSigns(&vecs, use)

	centred := mat.DenseCopyOf(raw)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, centred)
		mean := stat.Mean(col, nil)
		for i := range col {
			col[i] -= mean
		}
		centred.SetCol(j, col)
	}

	out := mat.NewDense(n, target, nil)
	proj := out.Slice(0, n, 0, use).(*mat.Dense)
	proj.Mul(centred, vecs.Slice(0, d, 0, use))
	return out, nil
}

// flipSigns makes the largest-magnitude loading of each component positive
// so the projection does not depend on the sign the SVD happened to pick.
func flipSigns(vecs *mat.Dense, cols int) {
	d, _ := vecs.Dims()
	for j := 0; j < cols; j++ {
		best, bestAbs := 0.0, -1.0
		for i := 0; i < d; i++ {
			v := vecs.At(i, j)
			if math.Abs(v) > bestAbs {
				best, bestAbs = v, math.Abs(v)
			}
		}
		if best < 0 {
			for i := 0; i < d; i++ {
				vecs.Set(i, j, -vecs.At(i, j))
			}
		}
	}
}
