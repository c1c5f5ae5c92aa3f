package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/hred-go/hred/embedding"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeInputs(t *testing.T, dims int) (vocabPath, pretrainedPath string) {
	t.Helper()
	dir := t.TempDir()

	vocabPath = filepath.Join(dir, "vocab.tsv")
	vocabTSV := "<s>\t0\t10\t0\nhello\t1\t5\t2\nhelllo\t2\t1\t1\nworld\t3\t4\t2\nnew-york\t4\t2\t1\n"
	require.NoError(t, os.WriteFile(vocabPath, []byte(vocabTSV), 0o644))

	var sb strings.Builder
	for i, w := range []string{"hello", "world", "new", "york", "there"} {
		sb.WriteString(w)
		for j := 0; j < dims; j++ {
			fmt.Fprintf(&sb, " %g", float64((i+1)*(j+2)%7)-3)
		}
		sb.WriteString("\n")
	}
	pretrainedPath = filepath.Join(dir, "vectors.txt")
	require.NoError(t, os.WriteFile(pretrainedPath, []byte(sb.String()), 0o644))
	return vocabPath, pretrainedPath
}

func TestRun(t *testing.T) {
	vocabPath, pretrainedPath := writeInputs(t, 6)
	output := filepath.Join(t.TempDir(), "Word2Vec_WordEmb")

	path, err := run(context.Background(), []string{
		vocabPath, pretrainedPath, output,
		"--emb-dim", "3",
		"--std-dev", "0.05",
		"--apply-spelling-corrections",
		"--workers", "2",
	}, &bytes.Buffer{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, output+".emb", path)

	m, err := embedding.Load(path)
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 3, cols)

	// <s> is a marker, everything else resolves
	assert.False(t, m.IsPretrained(0))
	for id := 1; id < 5; id++ {
		assert.True(t, m.IsPretrained(id), "id %d", id)
	}
	// helllo is corrected to hello
	assert.Equal(t, mat.Row(nil, 1, m.Weights), mat.Row(nil, 2, m.Weights))
}

func TestRunWithoutCorrections(t *testing.T) {
	vocabPath, pretrainedPath := writeInputs(t, 4)
	output := filepath.Join(t.TempDir(), "out")

	path, err := run(context.Background(), []string{vocabPath, pretrainedPath, output, "--emb-dim", "4"}, &bytes.Buffer{}, zerolog.Nop())
	require.NoError(t, err)

	m, err := embedding.Load(path)
	require.NoError(t, err)
	assert.False(t, m.IsPretrained(2), "helllo needs a spelling correction")
	assert.False(t, m.IsPretrained(4), "new-york needs a hyphen split")
}

func TestRunDimensionMismatchWritesNothing(t *testing.T) {
	vocabPath, pretrainedPath := writeInputs(t, 4)
	dir := t.TempDir()
	output := filepath.Join(dir, "out")

	_, err := run(context.Background(), []string{vocabPath, pretrainedPath, output, "--emb-dim", "10"}, &bytes.Buffer{}, zerolog.Nop())
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	_, err := run(context.Background(), []string{"only-one"}, &out, zerolog.Nop())
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out.String(), "--emb-dim")
}

func TestRunMissingInputs(t *testing.T) {
	dir := t.TempDir()
	_, err := run(context.Background(), []string{
		filepath.Join(dir, "missing.tsv"), filepath.Join(dir, "missing.txt"), filepath.Join(dir, "out"),
	}, &bytes.Buffer{}, zerolog.Nop())
	assert.Error(t, err)
}
