package trainer

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/checkpoint"
import "github.com/neurlang/rectifiedflow/net"

// Checkpoint snapshots the training state.
func (t *Trainer) Checkpoint() (*checkpoint.Checkpoint, error) {
	model, err := t.net.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encoding network")
	}
	es := t.ema.State()
	st := t.opt.State()
	return &checkpoint.Checkpoint{
		RunID:     t.runID,
		Step:      t.step,
		Objective: t.obj.Name(),
		NumParams: t.net.NumParams(),
		Meta:      t.Meta,
		Config:    t.RunConfig,
		Model:     model,
		EMA:       &es,
		Optimizer: &st,
	}, nil
}

// Save writes a checkpoint to path.
func (t *Trainer) Save(path string) error {
	c, err := t.Checkpoint()
	if err != nil {
		return err
	}
	if err := checkpoint.Save(path, c); err != nil {
		return err
	}
	grip.Debug(message.Fields{"message": "checkpoint saved", "path": path, "step": t.step})
	return nil
}

// Resume restores the network, EMA, optimizer, step and run id from the
// checkpoint at path. The checkpoint must hold a network of the same shape.
func (t *Trainer) Resume(path string) error {
	c, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	saved, err := net.FromJSON(c.Model)
	if err != nil {
		return errors.Wrapf(err, "resuming from %s", path)
	}
	if err := t.net.Load(saved.Weights()); err != nil {
		return errors.Wrapf(err, "resuming from %s", path)
	}
	if c.EMA != nil {
		if err := t.ema.Restore(*c.EMA); err != nil {
			return errors.Wrapf(err, "resuming from %s", path)
		}
	}
	if c.Optimizer != nil {
		if err := t.opt.Restore(*c.Optimizer); err != nil {
			return errors.Wrapf(err, "resuming from %s", path)
		}
	}
	t.step = c.Step
	if c.RunID != "" {
		t.runID = c.RunID
	}
	grip.Info(message.Fields{"message": "resumed", "path": path, "step": t.step, "run_id": t.runID})
	return nil
}
