package tensor

import "fmt"
import "math"

import "gonum.org/v1/gonum/floats"
import "gonum.org/v1/gonum/mat"

// ConcatCols joins tensors with equal row count along the feature axis.
// Nil tensors and tensors without columns are skipped.
func ConcatCols(parts ...*Tensor) *Tensor {
	rows, cols := -1, 0
	for _, p := range parts {
		if p == nil || p.Cols == 0 {
			continue
		}
		if rows >= 0 && p.Rows != rows {
			panic(fmt.Sprintf("tensor: concat row mismatch %d vs %d", p.Rows, rows))
		}
		rows = p.Rows
		cols += p.Cols
	}
	if rows < 0 {
		return Zeros(0, 0)
	}
	o := Zeros(rows, cols)
	for i := 0; i < rows; i++ {
		dst := o.Row(i)
		off := 0
		for _, p := range parts {
			if p == nil || p.Cols == 0 {
				continue
			}
			copy(dst[off:], p.Row(i))
			off += p.Cols
		}
	}
	return o
}

// SplitCols splits the feature axis into consecutive widths.
func (t *Tensor) SplitCols(widths ...int) []*Tensor {
	total := 0
	for _, w := range widths {
		total += w
	}
	if total != t.Cols {
		panic(fmt.Sprintf("tensor: split widths sum %d, have %d columns", total, t.Cols))
	}
	out := make([]*Tensor, len(widths))
	for j, w := range widths {
		out[j] = Zeros(t.Rows, w)
	}
	for i := 0; i < t.Rows; i++ {
		src := t.Row(i)
		off := 0
		for j, w := range widths {
			copy(out[j].Row(i), src[off:off+w])
			off += w
		}
	}
	return out
}

// RepeatRows repeats a single row n times.
func RepeatRows(row []float64, n int) *Tensor {
	o := Zeros(n, len(row))
	for i := 0; i < n; i++ {
		copy(o.Row(i), row)
	}
	return o
}

// Column returns a single feature per row as a n x 1 tensor from a slice.
func Column(v []float64) *Tensor {
	o := Zeros(len(v), 1)
	copy(o.Data, v)
	return o
}

// Lerp computes a + (b-a)*w[i] per row i.
func Lerp(a, b *Tensor, w []float64) *Tensor {
	a.mustSameShape(b, "lerp")
	if len(w) != a.Rows {
		panic(fmt.Sprintf("tensor: lerp weights %d for %d rows", len(w), a.Rows))
	}
	o := Zeros(a.Rows, a.Cols)
	for i := 0; i < a.Rows; i++ {
		ar, br, or := a.Row(i), b.Row(i), o.Row(i)
		for j := range or {
			or[j] = ar[j] + (br[j]-ar[j])*w[i]
		}
	}
	return o
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	a.mustSameShape(b, "sub")
	o := a.Clone()
	floats.Sub(o.Data, b.Data)
	return o
}

// Add returns a + b.
func Add(a, b *Tensor) *Tensor {
	a.mustSameShape(b, "add")
	o := a.Clone()
	floats.Add(o.Data, b.Data)
	return o
}

// AddScaled adds alpha*o into t in place.
func (t *Tensor) AddScaled(alpha float64, o *Tensor) *Tensor {
	t.mustSameShape(o, "add scaled")
	floats.AddScaled(t.Data, alpha, o.Data)
	return t
}

// AddRowScaled adds alpha[i]*o[i] into row i of t in place.
func (t *Tensor) AddRowScaled(alpha []float64, o *Tensor) *Tensor {
	t.mustSameShape(o, "add row scaled")
	for i := 0; i < t.Rows; i++ {
		floats.AddScaled(t.Row(i), alpha[i], o.Row(i))
	}
	return t
}

// Scale multiplies every element in place.
func (t *Tensor) Scale(f float64) *Tensor {
	floats.Scale(f, t.Data)
	return t
}

// Apply maps fn over every element in place.
func (t *Tensor) Apply(fn func(float64) float64) *Tensor {
	for i, v := range t.Data {
		t.Data[i] = fn(v)
	}
	return t
}

// Clamp limits every element to [lo, hi] in place.
func (t *Tensor) Clamp(lo, hi float64) *Tensor {
	return t.Apply(func(v float64) float64 {
		return math.Max(lo, math.Min(hi, v))
	})
}

// Mean averages all elements.
func (t *Tensor) Mean() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Sum(t.Data) / float64(len(t.Data))
}

// RowSquaredError returns the mean squared difference per row.
func RowSquaredError(a, b *Tensor) []float64 {
	a.mustSameShape(b, "squared error")
	out := make([]float64, a.Rows)
	for i := 0; i < a.Rows; i++ {
		ar, br := a.Row(i), b.Row(i)
		var s float64
		for j := range ar {
			d := ar[j] - br[j]
			s += d * d
		}
		if a.Cols > 0 {
			out[i] = s / float64(a.Cols)
		}
	}
	return out
}

// IsFinite reports whether no element is NaN or infinite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MatMulT computes x·wᵀ where x is n x in and w is out x in.
func MatMulT(x, w *Tensor) *Tensor {
	if x.Cols != w.Cols {
		panic(fmt.Sprintf("tensor: matmul inner mismatch %d vs %d", x.Cols, w.Cols))
	}
	o := Zeros(x.Rows, w.Rows)
	if x.Rows == 0 || w.Rows == 0 || x.Cols == 0 {
		return o
	}
	xm := mat.NewDense(x.Rows, x.Cols, x.Data)
	wm := mat.NewDense(w.Rows, w.Cols, w.Data)
	om := mat.NewDense(o.Rows, o.Cols, o.Data)
	om.Mul(xm, wm.T())
	return o
}

// MatMul computes a·b where a is n x k and b is k x m.
func MatMul(a, b *Tensor) *Tensor {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("tensor: matmul inner mismatch %d vs %d", a.Cols, b.Rows))
	}
	o := Zeros(a.Rows, b.Cols)
	if a.Rows == 0 || b.Cols == 0 || a.Cols == 0 {
		return o
	}
	am := mat.NewDense(a.Rows, a.Cols, a.Data)
	bm := mat.NewDense(b.Rows, b.Cols, b.Data)
	om := mat.NewDense(o.Rows, o.Cols, o.Data)
	om.Mul(am, bm)
	return o
}

// MatTMulAdd accumulates aᵀ·b into dst, where a is n x p, b is n x q and dst holds p x q values.
func MatTMulAdd(dst []float64, a, b *Tensor) {
	if a.Rows != b.Rows {
		panic(fmt.Sprintf("tensor: matTmul row mismatch %d vs %d", a.Rows, b.Rows))
	}
	if len(dst) != a.Cols*b.Cols {
		panic(fmt.Sprintf("tensor: matTmul destination %d, want %d", len(dst), a.Cols*b.Cols))
	}
	if a.Rows == 0 || a.Cols == 0 || b.Cols == 0 {
		return
	}
	am := mat.NewDense(a.Rows, a.Cols, a.Data)
	bm := mat.NewDense(b.Rows, b.Cols, b.Data)
	var prod mat.Dense
	prod.Mul(am.T(), bm)
	floats.Add(dst, prod.RawMatrix().Data)
}
