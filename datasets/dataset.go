// Package datasets implements the datasets and the cycling batch loader fed to training
package datasets

import "fmt"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/stat"

import "github.com/neurlang/rectifiedflow/tensor"

// Dataset is an indexable collection of equally shaped samples.
type Dataset interface {
	// Len is the number of samples.
	Len() int
	// Shape is the per sample shape, for example [2] or [C, H, W].
	Shape() []int
	// At copies sample i into dst, which holds Numel(Shape()) values.
	At(i int, dst []float64)
}

// Conditional is a Dataset that also carries a conditioning vector per sample.
type Conditional interface {
	Dataset
	CondDim() int
	Cond(i int, dst []float64)
}

// CondDim returns the conditioning width of d, 0 when d is unconditional.
func CondDim(d Dataset) int {
	if c, ok := d.(Conditional); ok {
		return c.CondDim()
	}
	return 0
}

// TensorDataset serves rows of a tensor.
type TensorDataset struct {
	data  *tensor.Tensor
	cond  *tensor.Tensor
	shape []int
}

// NewTensorDataset wraps data rows with optional conditioning rows. The shape
// defaults to a flat vector.
func NewTensorDataset(data, cond *tensor.Tensor, shape ...int) (*TensorDataset, error) {
	if data == nil {
		return nil, errors.New("datasets: nil data")
	}
	if cond != nil && cond.Rows != data.Rows {
		return nil, errors.Errorf("datasets: %d conditioning rows for %d samples", cond.Rows, data.Rows)
	}
	if len(shape) == 0 {
		shape = []int{data.Cols}
	}
	if tensor.Numel(shape) != data.Cols {
		return nil, errors.Errorf("datasets: shape %v does not hold %d features", shape, data.Cols)
	}
	return &TensorDataset{data: data, cond: cond, shape: shape}, nil
}

// MustNewTensorDataset is NewTensorDataset that panics on error.
func MustNewTensorDataset(data, cond *tensor.Tensor, shape ...int) *TensorDataset {
	d, err := NewTensorDataset(data, cond, shape...)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Len is the number of rows.
func (d *TensorDataset) Len() int { return d.data.Rows }

// Shape is the per sample shape.
func (d *TensorDataset) Shape() []int { return d.shape }

// At copies row i.
func (d *TensorDataset) At(i int, dst []float64) { copy(dst, d.data.Row(i)) }

// CondDim is the conditioning width, 0 without conditioning.
func (d *TensorDataset) CondDim() int {
	if d.cond == nil {
		return 0
	}
	return d.cond.Cols
}

// Cond copies conditioning row i.
func (d *TensorDataset) Cond(i int, dst []float64) {
	if d.cond != nil {
		copy(dst, d.cond.Row(i))
	}
}

// Data returns the underlying rows.
func (d *TensorDataset) Data() *tensor.Tensor { return d.data }

// String describes the dataset.
func (d *TensorDataset) String() string {
	return fmt.Sprintf("TensorDataset(%d x %v, cond %d)", d.Len(), d.shape, d.CondDim())
}

// Moments returns the per feature mean and standard deviation of a dataset.
func Moments(d Dataset) (mean, std []float64) {
	cols := tensor.Numel(d.Shape())
	columns := make([][]float64, cols)
	row := make([]float64, cols)
	for i := 0; i < d.Len(); i++ {
		d.At(i, row)
		for j, v := range row {
			columns[j] = append(columns[j], v)
		}
	}
	mean, std = make([]float64, cols), make([]float64, cols)
	for j, c := range columns {
		if len(c) < 2 {
			if len(c) == 1 {
				mean[j] = c[0]
			}
			continue
		}
		mean[j], std[j] = stat.MeanStdDev(c, nil)
	}
	return mean, std
}

// TensorMoments returns the per column mean and standard deviation of rows.
func TensorMoments(t *tensor.Tensor) (mean, std []float64) {
	return Moments(MustNewTensorDataset(t, nil))
}
