package expression

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnade"
	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a labelled numeric matrix. It is used for the target gene
// expression consumed by enrichment (genes x samples) and for heatmap input
// (samples x features).
type Matrix struct {
	Rows   []string
	Cols   []string
	Values *mat.Dense
}

// Dims returns the row and column counts.
func (m *Matrix) Dims() (int, int) {
	return len(m.Rows), len(m.Cols)
}

// RowIndex maps row labels to their position. Later duplicates are ignored.
func (m *Matrix) RowIndex() map[string]int {
	out := make(map[string]int, len(m.Rows))
	for i, r := range m.Rows {
		if _, exists := out[r]; !exists {
			out[r] = i
		}
	}
	return out
}

// ColumnsWithPrefix returns the indices of columns whose label starts with
// prefix.
func (m *Matrix) ColumnsWithPrefix(prefix string) []int {
	out := make([]int, 0)
	for j, c := range m.Cols {
		if strings.HasPrefix(c, prefix) {
			out = append(out, j)
		}
	}
	return out
}

// NewMatrix builds a matrix from row-major values.
func NewMatrix(rows, cols []string, values [][]float64) (*Matrix, error) {
	if len(values) != len(rows) {
		return nil, fmt.Errorf("%d rows of values for %d row labels", len(values), len(rows))
	}
	m := &Matrix{Rows: rows, Cols: cols}
	if len(rows) == 0 || len(cols) == 0 {
		return m, nil
	}
	m.Values = mat.NewDense(len(rows), len(cols), nil)
	for i, row := range values {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("row %s has %d values, expected %d", rows[i], len(row), len(cols))
		}
		m.Values.SetRow(i, row)
	}
	return m, nil
}

// ReadMatrix parses a delimited matrix whose first row holds column labels
// (the first header cell is ignored) and whose first column holds row labels.
// The delimiter is sniffed. Missing values (NA, null, empty) become NaN.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = mirnade.DetermineDelimiter(bufio.NewReader(bytes.NewReader(raw)))
	cr.Comment = '#'
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(records) < 1 || len(records[0]) < 2 {
		return nil, fmt.Errorf("matrix has no header or no data columns")
	}

	cols := append([]string(nil), records[0][1:]...)
	rows := make([]string, 0, len(records)-1)
	values := make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(cols)+1 {
			return nil, fmt.Errorf("matrix line %d has %d fields, expected %d", i+2, len(rec), len(cols)+1)
		}
		row := make([]float64, len(cols))
		for j, v := range rec[1:] {
			row[j], err = ParseValue(v)
			if err != nil {
				return nil, fmt.Errorf("matrix line %d column %s: %w", i+2, cols[j], err)
			}
		}
		rows = append(rows, strings.TrimSpace(rec[0]))
		values = append(values, row)
	}

	return NewMatrix(rows, cols, values)
}

// OpenMatrix reads a possibly compressed matrix from a local or gs:// path.
func OpenMatrix(ctx context.Context, path string, client *storage.Client) (*Matrix, error) {
	r, err := mirnade.OpenMaybeCompressed(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return ReadMatrix(r)
}

// ParseValue parses an expression value. NA, null and empty strings are NaN.
func ParseValue(v string) (float64, error) {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	switch strings.ToLower(v) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(v, 64)
}
