// Package tensor implements the dense batch tensor used by the flow models
package tensor

import "fmt"

// Tensor is a batch of Rows flat samples, each holding Cols features in row-major order.
type Tensor struct {
	Rows int
	Cols int
	Data []float64
}

// New wraps data as a rows x cols tensor. The data length must match.
func New(rows, cols int, data []float64) *Tensor {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("tensor: negative shape %dx%d", rows, cols))
	}
	if len(data) != rows*cols {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %dx%d", len(data), rows, cols))
	}
	return &Tensor{Rows: rows, Cols: cols, Data: data}
}

// Zeros allocates a zero filled rows x cols tensor.
func Zeros(rows, cols int) *Tensor {
	return New(rows, cols, make([]float64, rows*cols))
}

// Full allocates a rows x cols tensor filled with value v.
func Full(rows, cols int, v float64) *Tensor {
	t := Zeros(rows, cols)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// FromRows copies equally sized rows into a new tensor.
func FromRows(rows [][]float64) *Tensor {
	if len(rows) == 0 {
		return Zeros(0, 0)
	}
	cols := len(rows[0])
	t := Zeros(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			panic(fmt.Sprintf("tensor: row %d has %d columns, want %d", i, len(r), cols))
		}
		copy(t.Row(i), r)
	}
	return t
}

// Row returns the i-th row sharing storage with the tensor.
func (t *Tensor) Row(i int) []float64 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Rowset returns rows [from, to) as a tensor sharing storage.
func (t *Tensor) Rowset(from, to int) *Tensor {
	if from < 0 || to > t.Rows || from > to {
		panic(fmt.Sprintf("tensor: row range [%d,%d) out of %d rows", from, to, t.Rows))
	}
	return &Tensor{Rows: to - from, Cols: t.Cols, Data: t.Data[from*t.Cols : to*t.Cols]}
}

// Clone deep copies the tensor.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	o := Zeros(t.Rows, t.Cols)
	copy(o.Data, t.Data)
	return o
}

// SameShape reports whether two tensors have equal dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.Rows == o.Rows && t.Cols == o.Cols
}

func (t *Tensor) mustSameShape(o *Tensor, op string) {
	if !t.SameShape(o) {
		panic(fmt.Sprintf("tensor: %s shape mismatch %dx%d vs %dx%d", op, t.Rows, t.Cols, o.Rows, o.Cols))
	}
}

// String formats the shape of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%dx%d)", t.Rows, t.Cols)
}

// Numel multiplies out a per-sample shape.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
