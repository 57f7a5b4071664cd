// Package dataset loads tab-separated instance files and serves their rows
// in a cycle.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// ErrEmpty is returned for files without data rows.
var ErrEmpty = errors.New("dataset: no instances")

// #region types

// Instance is one data row: inputs, target outputs and the class label.
type Instance struct {
	Input  []float64
	Output []float64
	Label  int
}

// Dataset is an in-memory set of instances with a cyclic cursor. It is not
// safe for concurrent use.
type Dataset struct {
	name       string
	inputSize  int
	outputSize int
	rows       []Instance
	cursor     int
}

// #endregion types

// #region loader

// Load reads a tab-separated file. The first line is a header; every other
// line holds inputSize inputs, outputSize outputs and a label.
func Load(path string, inputSize, outputSize int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Parse(f, inputSize, outputSize)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	ds.name = path
	return ds, nil
}

// Parse reads a dataset from r.
func Parse(r io.Reader, inputSize, outputSize int) (*Dataset, error) {
	if inputSize < 1 || outputSize < 1 {
		return nil, fmt.Errorf("sizes must be positive: input=%d output=%d", inputSize, outputSize)
	}
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("header: %w", err)
	}

	ds := &Dataset{inputSize: inputSize, outputSize: outputSize}
	width := inputSize + outputSize + 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != width {
			return nil, fmt.Errorf("line %d: want %d fields, got %d", line, width, len(rec))
		}
		vals := make([]float64, width)
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d field %d: %w", line, i+1, err)
			}
			vals[i] = v
		}
		label := vals[width-1]
		if label != math.Trunc(label) {
			return nil, fmt.Errorf("line %d: label %v is not an integer", line, label)
		}
		ds.rows = append(ds.rows, Instance{
			Input:  vals[:inputSize:inputSize],
			Output: vals[inputSize : inputSize+outputSize : inputSize+outputSize],
			Label:  int(label),
		})
	}
	if len(ds.rows) == 0 {
		return nil, ErrEmpty
	}
	return ds, nil
}

// #endregion loader

// #region cursor

// Size returns the number of instances.
func (d *Dataset) Size() int { return len(d.rows) }

// InputSize returns the number of input values per row.
func (d *Dataset) InputSize() int { return d.inputSize }

// OutputSize returns the number of target values per row.
func (d *Dataset) OutputSize() int { return d.outputSize }

// Name returns the source path, if any.
func (d *Dataset) Name() string { return d.name }

// Next returns the instance under the cursor and advances it, wrapping to
// the first row after the last.
func (d *Dataset) Next() Instance {
	if d.cursor >= len(d.rows) {
		d.cursor = 0
	}
	inst := d.rows[d.cursor]
	d.cursor++
	return inst
}

// Reset moves the cursor to the first row.
func (d *Dataset) Reset() { d.cursor = 0 }

// At returns row i.
func (d *Dataset) At(i int) Instance { return d.rows[i] }

// #endregion cursor

// #region labels

// WriteLabels writes a "Correct\tPredicted" table of label pairs to w.
func WriteLabels(w io.Writer, pairs [][2]int) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"Correct", "Predicted"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := cw.Write([]string{strconv.Itoa(p[0]), strconv.Itoa(p[1])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// #endregion labels
