package checkpoint

import "os"
import "time"

import "github.com/pkg/errors"
import "github.com/tidwall/gjson"

// Summary is the header of a checkpoint.
type Summary struct {
	Path         string    `json:"path" yaml:"path"`
	Bytes        int64     `json:"bytes" yaml:"bytes"`
	Version      int       `json:"version" yaml:"version"`
	RunID        string    `json:"run_id" yaml:"run_id"`
	Step         int       `json:"step" yaml:"step"`
	Objective    string    `json:"objective" yaml:"objective"`
	NumParams    int       `json:"num_params" yaml:"num_params"`
	Created      time.Time `json:"created" yaml:"created"`
	EMAStep      int       `json:"ema_step" yaml:"ema_step"`
	HasEMA       bool      `json:"has_ema" yaml:"has_ema"`
	HasOptimizer bool      `json:"has_optimizer" yaml:"has_optimizer"`
	Network      string    `json:"network" yaml:"network"`
	Layers       int       `json:"layers" yaml:"layers"`
}

// Inspect verifies the checkpoint at path and summarizes it without
// decoding the weight arrays.
func Inspect(path string) (Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, errors.WithStack(err)
	}
	doc, err := payload(raw)
	if err != nil {
		return Summary{}, errors.Wrapf(err, "inspecting %s", path)
	}
	if !gjson.ValidBytes(doc) {
		return Summary{}, errors.Wrapf(ErrCorrupt, "inspecting %s", path)
	}
	res := gjson.GetManyBytes(doc, "version", "run_id", "step", "objective", "num_params", "created", "ema.step", "optimizer", "model.params.#", "model.kind")
	s := Summary{
		Path:         path,
		Bytes:        int64(len(raw)),
		Version:      int(res[0].Int()),
		RunID:        res[1].String(),
		Step:         int(res[2].Int()),
		Objective:    res[3].String(),
		NumParams:    int(res[4].Int()),
		EMAStep:      int(res[6].Int()),
		HasEMA:       res[6].Exists(),
		HasOptimizer: res[7].Exists(),
		Layers:       int(res[8].Int()),
		Network:      res[9].String(),
	}
	if s.Network == "" {
		s.Network = "feedforward"
	}
	s.Created = res[5].Time()
	return s, nil
}
