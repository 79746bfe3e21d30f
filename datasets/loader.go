package datasets

import rand "math/rand/v2"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/tensor"

// Loader draws batches from a dataset forever, starting a new epoch, and
// reshuffling when enabled, once the current one is exhausted.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	dropLast  bool
	rng       *rand.Rand
	order     []int
	pos       int
	epoch     int
}

// NewLoader creates a loader. With dropLast, an epoch tail shorter than the
// batch size is skipped.
func NewLoader(ds Dataset, batchSize int, shuffle, dropLast bool, seed uint64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("datasets: batch size must be positive, got %d", batchSize)
	}
	if ds.Len() == 0 {
		return nil, errors.New("datasets: empty dataset")
	}
	if dropLast && ds.Len() < batchSize {
		return nil, errors.Errorf("datasets: %d samples cannot fill a batch of %d", ds.Len(), batchSize)
	}
	l := &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		dropLast:  dropLast,
		rng:       tensor.NewRand(seed),
		order:     make([]int, ds.Len()),
	}
	for i := range l.order {
		l.order[i] = i
	}
	l.reset()
	return l, nil
}

func (l *Loader) reset() {
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Epoch is the number of completed passes over the dataset.
func (l *Loader) Epoch() int { return l.epoch }

// Next returns the next batch of samples and, for conditional datasets, their
// conditioning rows. cond is nil otherwise.
func (l *Loader) Next() (data, cond *tensor.Tensor) {
	left := len(l.order) - l.pos
	if left == 0 || (l.dropLast && left < l.batchSize) {
		l.epoch++
		l.reset()
		left = len(l.order)
	}
	n := min(l.batchSize, left)
	data = tensor.Zeros(n, tensor.Numel(l.ds.Shape()))
	c, conditional := l.ds.(Conditional)
	if conditional && c.CondDim() > 0 {
		cond = tensor.Zeros(n, c.CondDim())
	}
	for i := 0; i < n; i++ {
		k := l.order[l.pos+i]
		l.ds.At(k, data.Row(i))
		if cond != nil {
			c.Cond(k, cond.Row(i))
		}
	}
	l.pos += n
	return data, cond
}
