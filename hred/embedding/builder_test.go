package embedding

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/hred-go/hred/align"
	"github.com/ZanzyTHEbar/hred-go/hred/pretrained"
	"github.com/ZanzyTHEbar/hred-go/hred/spelling"
	"github.com/ZanzyTHEbar/hred-go/hred/vocab"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const testStdDev = 0.01

func randomTable(t *testing.T, words []string, dims int, seed uint64) *pretrained.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	table := pretrained.NewTable(dims)
	for _, w := range words {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		require.NoError(t, table.Add(w, vec))
	}
	return table
}

func makeVocab(t *testing.T, tokens ...string) *vocab.Vocabulary {
	t.Helper()
	entries := make([]vocab.Entry, len(tokens))
	for i, tok := range tokens {
		entries[i] = vocab.Entry{Token: tok, ID: i, Freq: int64(i + 1)}
	}
	v, err := vocab.New(entries)
	require.NoError(t, err)
	return v
}

func build(t *testing.T, table *pretrained.Table, v *vocab.Vocabulary, embDim int, workers int) (*Result, error) {
	t.Helper()
	resolver := align.NewResolver(table, align.Options{
		Markers:                  align.DefaultMarkers,
		ApplySpellingCorrections: true,
		Suggester:                spelling.DictionaryFromWords(table.Words()),
		Logger:                   zerolog.Nop(),
	})
	b, err := NewBuilder(resolver, Options{
		EmbDim:  embDim,
		StdDev:  testStdDev,
		Seed:    123456,
		Workers: workers,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return b.Build(context.Background(), v, table.Dimensions())
}

func TestBuildScenario(t *testing.T) {
	table := pretrained.NewTable(3)
	require.NoError(t, table.Add("hello", []float32{0.5, -1, 2}))
	v := makeVocab(t, "hello", "helllo", "<unk>")

	res, err := build(t, table, v, 3, 1)
	require.NoError(t, err)

	assert.Equal(t, align.StrategyExact, res.Resolutions[0].Strategy)
	assert.Equal(t, align.StrategySpelling, res.Resolutions[1].Strategy)
	assert.Equal(t, "hello", res.Resolutions[1].Matched)
	assert.True(t, res.Resolutions[2].Marker)

	m := res.Matrix
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.True(t, m.IsPretrained(0))
	assert.True(t, m.IsPretrained(1))
	assert.False(t, m.IsPretrained(2))

	// both resolved rows come from the same pretrained vector
	assert.Equal(t, mat.Row(nil, 0, m.Weights), mat.Row(nil, 1, m.Weights))

	// the left-out row is the first draw of the seeded generator
	want := RandomRows(1, 3, testStdDev, 123456)
	assert.Equal(t, mat.Row(nil, 0, want), mat.Row(nil, 2, m.Weights))

	mask := m.Mask()
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 0, mask))
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 1, mask))
	assert.Equal(t, []float64{1, 1, 1}, mat.Row(nil, 2, mask))
}

func TestBuildReducesWithPCA(t *testing.T) {
	words := make([]string, 120)
	for i := range words {
		words[i] = fmt.Sprintf("word%03d", i)
	}
	table := randomTable(t, words, 300, 7)

	tokens := append([]string{"<s>", "</s>"}, words...)
	tokens = append(tokens, "12345", "67890")
	v := makeVocab(t, tokens...)

	res, err := build(t, table, v, 50, 4)
	require.NoError(t, err)

	rows, cols := res.Matrix.Dims()
	assert.Equal(t, len(tokens), rows)
	assert.Equal(t, 50, cols)
	assert.Equal(t, uint64(4), res.Matrix.NonPretrained.GetCardinality())

	// resolved rows are standardised per column to the target deviation
	col := make([]float64, 0, len(words))
	for j := 0; j < cols; j++ {
		col = col[:0]
		for id := range tokens {
			if res.Matrix.IsPretrained(id) {
				col = append(col, res.Matrix.Weights.At(id, j))
			}
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, testStdDev, math.Sqrt(variance), 1e-9, "column %d std", j)
	}
}

func TestBuildPCAIgnoresLeftOutRows(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}
	table := randomTable(t, words, 10, 3)

	base, err := build(t, table, makeVocab(t, words...), 4, 1)
	require.NoError(t, err)

	withUnknown, err := build(t, table, makeVocab(t, append(append([]string{}, words...), "<unk>", "qqqqqq")...), 4, 1)
	require.NoError(t, err)

	for id := range words {
		assert.InDeltaSlice(t, mat.Row(nil, id, base.Matrix.Weights), mat.Row(nil, id, withUnknown.Matrix.Weights), 1e-12)
	}
}

func TestBuildTargetLargerThanPretrained(t *testing.T) {
	table := randomTable(t, []string{"hello"}, 10, 1)
	v := makeVocab(t, "hello")

	res, err := build(t, table, v, 20, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Nil(t, res)
}

func TestBuildNoResolvedRows(t *testing.T) {
	table := randomTable(t, []string{"hello"}, 4, 1)
	v := makeVocab(t, "<unk>", "qqqqqq")

	_, err := build(t, table, v, 4, 1)
	assert.ErrorIs(t, err, ErrNoResolvedRows)
}

func TestBuildZeroFrequency(t *testing.T) {
	table := randomTable(t, []string{"hello"}, 4, 1)
	v, err := vocab.New([]vocab.Entry{{Token: "hello", ID: 0, Freq: 0}})
	require.NoError(t, err)

	_, err = build(t, table, v, 4, 1)
	assert.ErrorIs(t, err, align.ErrZeroFrequency)
}

func TestBuildIsDeterministic(t *testing.T) {
	words := []string{"the", "cat", "sat", "on", "mat", "dog", "ran", "park", "in", "a"}
	table := randomTable(t, words, 16, 11)
	tokens := append(append([]string{}, words...), "<unk>", "catt", "sat-on", "Zzyzx", "</s>")
	v := makeVocab(t, tokens...)
	dir := t.TempDir()

	var artifacts [][]byte
	for i, workers := range []int{1, 4} {
		res, err := build(t, table, v, 8, workers)
		require.NoError(t, err)

		path := OutputPath(filepath.Join(dir, fmt.Sprintf("run%d", i)), ".emb")
		require.NoError(t, Save(path, res.Matrix))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		artifacts = append(artifacts, data)
	}

	assert.True(t, bytes.Equal(artifacts[0], artifacts[1]), "artifacts differ between runs")
}

func TestBuildCancelled(t *testing.T) {
	table := randomTable(t, []string{"hello"}, 4, 1)
	v := makeVocab(t, "hello")
	resolver := align.NewResolver(table, align.Options{Logger: zerolog.Nop()})
	b, err := NewBuilder(resolver, Options{EmbDim: 4, StdDev: 1, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, v, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBuilderValidation(t *testing.T) {
	resolver := align.NewResolver(pretrained.NewTable(2), align.Options{})

	_, err := NewBuilder(nil, Options{EmbDim: 2, StdDev: 1})
	assert.Error(t, err)
	_, err = NewBuilder(resolver, Options{EmbDim: 0, StdDev: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = NewBuilder(resolver, Options{EmbDim: 2, StdDev: 0})
	assert.Error(t, err)
}
