// Package features turns token sequences into fixed-length TF-IDF vectors.
package features

// SparseVector holds the non-zero entries of a fixed-length vector. Indices
// are strictly increasing.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of stored entries.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

// At returns the value at index i, or 0 if it is not stored.
func (v SparseVector) At(i int) float64 {
	lo, hi := 0, len(v.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case v.Indices[mid] == i:
			return v.Values[mid]
		case v.Indices[mid] < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0
}

// Matrix is a row-major sparse matrix with Dim columns.
type Matrix struct {
	Rows []SparseVector
	Dim  int
}

// NumRows returns the number of rows.
func (m Matrix) NumRows() int {
	return len(m.Rows)
}

// Subset returns a matrix holding the rows at idx, in that order. Row
// storage is shared.
func (m Matrix) Subset(idx []int) Matrix {
	rows := make([]SparseVector, len(idx))
	for i, j := range idx {
		rows[i] = m.Rows[j]
	}
	return Matrix{Rows: rows, Dim: m.Dim}
}

// Column is one feature column in compressed form: the rows holding a
// non-zero value, ascending, and the values themselves.
type Column struct {
	Rows   []int
	Values []float64
}

// Columns builds the column-major view of m.
func (m Matrix) Columns() []Column {
	counts := make([]int, m.Dim)
	for _, r := range m.Rows {
		for _, j := range r.Indices {
			counts[j]++
		}
	}

	cols := make([]Column, m.Dim)
	for j, c := range counts {
		if c > 0 {
			cols[j] = Column{Rows: make([]int, 0, c), Values: make([]float64, 0, c)}
		}
	}
	for i, r := range m.Rows {
		for k, j := range r.Indices {
			cols[j].Rows = append(cols[j].Rows, i)
			cols[j].Values = append(cols[j].Values, r.Values[k])
		}
	}
	return cols
}
