package trainer

import "context"
import "fmt"
import "os"
import "path/filepath"
import "time"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/metrics"

// CheckpointPath is where Run saves and resumes.
func (t *Trainer) CheckpointPath() string {
	return filepath.Join(t.cfg.ResultsFolder, t.cfg.Checkpoint)
}

// Run trains until Steps is reached or ctx is canceled. On cancellation it
// saves a checkpoint and returns ctx.Err().
func (t *Trainer) Run(ctx context.Context) (err error) {
	if err = os.MkdirAll(t.cfg.ResultsFolder, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", t.cfg.ResultsFolder)
	}
	if t.cfg.Resume {
		if _, serr := os.Stat(t.CheckpointPath()); serr == nil {
			if err = t.Resume(t.CheckpointPath()); err != nil {
				return err
			}
		}
	}
	if t.cfg.History {
		path := filepath.Join(t.cfg.ResultsFolder, fmt.Sprintf("history-%d.parquet", t.step))
		if t.history, err = metrics.NewHistory(path); err != nil {
			return err
		}
		defer func() {
			herr := t.history.Close()
			t.history = nil
			if err == nil {
				err = herr
			}
		}()
	}

	t.started = time.Now()
	grip.Info(message.Fields{
		"message":   "training started",
		"run_id":    t.runID,
		"objective": t.obj.Name(),
		"network":   t.net.String(),
		"params":    t.net.NumParams(),
		"workers":   len(t.grads),
		"step":      t.step,
		"steps":     t.cfg.Steps,
	})

	for t.step < t.cfg.Steps {
		select {
		case <-ctx.Done():
			grip.Notice(message.Fields{"message": "training interrupted", "step": t.step})
			if serr := t.Save(t.CheckpointPath()); serr != nil {
				return errors.Wrap(serr, ctx.Err().Error())
			}
			return ctx.Err()
		default:
		}

		res, err := t.TrainStep()
		if err != nil {
			return err
		}
		if every(t.cfg.LogEvery, res.Step) {
			grip.Info(message.Fields{
				"message":     "step",
				"step":        res.Step,
				"loss":        res.Loss.Total,
				"main":        res.Loss.Main,
				"consistency": res.Loss.Consistency,
				"grad_norm":   res.GradNorm,
				"lr":          res.LR,
				"ema_decay":   t.ema.LastDecay(),
				"ms":          res.Duration.Milliseconds(),
			})
		}
		if every(t.cfg.SampleEvery, res.Step) {
			path := filepath.Join(t.cfg.ResultsFolder, fmt.Sprintf("sample-%d.png", res.Step/t.cfg.SampleEvery))
			if err := t.SaveSamples(path, t.cfg.NumSamples); err != nil {
				return err
			}
		}
		if every(t.cfg.SaveEvery, res.Step) {
			if err := t.Save(t.CheckpointPath()); err != nil {
				return err
			}
		}
	}

	if err = t.Save(t.CheckpointPath()); err != nil {
		return err
	}
	grip.Info(message.Fields{
		"message": "training complete",
		"run_id":  t.runID,
		"step":    t.step,
		"elapsed": time.Since(t.started).String(),
	})
	return nil
}

func every(n, step int) bool {
	return n > 0 && step%n == 0
}
