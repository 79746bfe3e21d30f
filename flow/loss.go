package flow

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/tensor"

// Loss is a per sample regression loss. Eval returns the loss of every row
// and writes d(row loss)/d(pred) into grad, which has the shape of pred.
type Loss interface {
	Eval(pred, target, grad *tensor.Tensor) []float64
	Name() string
}

// MSE is the mean squared error over features.
type MSE struct{}

// Eval computes per row mean squared error and its gradient.
func (MSE) Eval(pred, target, grad *tensor.Tensor) []float64 {
	out := tensor.RowSquaredError(pred, target)
	d := 2 / float64(max(pred.Cols, 1))
	for k := range grad.Data {
		grad.Data[k] = d * (pred.Data[k] - target.Data[k])
	}
	return out
}

// Name describes the loss.
func (MSE) Name() string { return "mse" }

// PseudoHuber is sqrt(mse + c²) - c per row with c = 0.00054·DataDim.
// DataDim defaults to the feature count.
type PseudoHuber struct {
	DataDim int
}

func (p PseudoHuber) c(cols int) float64 {
	d := p.DataDim
	if d <= 0 {
		d = cols
	}
	return 0.00054 * float64(d)
}

// Eval computes the per row pseudo huber loss and its gradient.
func (p PseudoHuber) Eval(pred, target, grad *tensor.Tensor) []float64 {
	c := p.c(pred.Cols)
	mse := tensor.RowSquaredError(pred, target)
	d := 2 / float64(max(pred.Cols, 1))
	for i, m := range mse {
		r := math.Sqrt(m + c*c)
		mse[i] = r - c
		s := d / (2 * r)
		pr, tr, gr := pred.Row(i), target.Row(i), grad.Row(i)
		for j := range gr {
			gr[j] = s * (pr[j] - tr[j])
		}
	}
	return mse
}

// Name describes the loss.
func (p PseudoHuber) Name() string { return "pseudo_huber" }

// LossByName maps a configuration name to a loss.
func LossByName(name string, dataDim int) (Loss, error) {
	switch name {
	case "", "mse":
		return MSE{}, nil
	case "pseudo_huber", "huber":
		return PseudoHuber{DataDim: dataDim}, nil
	}
	return nil, fmt.Errorf("flow: unknown loss %q", name)
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
