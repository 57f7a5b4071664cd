package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "x1\tx2\ty1\ty2\tlabel\n" +
	"0.1\t0.2\t1\t0\t0\n" +
	"0.8\t0.9\t0\t1\t1\n" +
	"0.5\t0.5\t0.5\t0.5\t1\n"

func TestParse(t *testing.T) {
	ds, err := Parse(strings.NewReader(sample), 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Size())
	first := ds.At(0)
	assert.Equal(t, []float64{0.1, 0.2}, first.Input)
	assert.Equal(t, []float64{1, 0}, first.Output)
	assert.Equal(t, 0, first.Label)
	assert.Equal(t, 1, ds.At(1).Label)
}

func TestNext_Cycles(t *testing.T) {
	ds, err := Parse(strings.NewReader(sample), 2, 2)
	require.NoError(t, err)

	var labels []int
	var xs []float64
	for i := 0; i < 7; i++ {
		inst := ds.Next()
		labels = append(labels, inst.Label)
		xs = append(xs, inst.Input[0])
	}
	assert.Equal(t, []float64{0.1, 0.8, 0.5, 0.1, 0.8, 0.5, 0.1}, xs)
	assert.Equal(t, []int{0, 1, 1, 0, 1, 1, 0}, labels)

	ds.Reset()
	assert.Equal(t, 0.1, ds.Next().Input[0])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong width", "h\n0.1\t0.2\t1\n"},
		{"not a number", "h\n0.1\tx\t1\t0\t0\n"},
		{"fractional label", "h\n0.1\t0.2\t1\t0\t0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in), 2, 2)
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader(""), 1, 1)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse(strings.NewReader("header only\n"), 1, 1)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParse_BadSizes(t *testing.T) {
	_, err := Parse(strings.NewReader(sample), 0, 2)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	ds, err := Load(path, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, path, ds.Name())
	assert.Equal(t, 2, ds.InputSize())
	assert.Equal(t, 2, ds.OutputSize())

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), 2, 2)
	assert.Error(t, err)
}

func TestWriteLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLabels(&buf, [][2]int{{0, 0}, {1, 2}}))
	assert.Equal(t, "Correct\tPredicted\n0\t0\n1\t2\n", buf.String())
}
