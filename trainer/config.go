package trainer

import "github.com/mongodb/grip"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/ema"
import "github.com/neurlang/rectifiedflow/optim"

// Config holds the training loop settings.
type Config struct {
	Steps        int        `json:"steps" yaml:"steps"`
	BatchSize    int        `json:"batch_size" yaml:"batch_size"`
	LearningRate float64    `json:"learning_rate" yaml:"learning_rate"`
	MinLR        float64    `json:"min_lr" yaml:"min_lr"`
	Schedule     string     `json:"schedule" yaml:"schedule"` // constant, warmup or cosine
	Warmup       int        `json:"warmup" yaml:"warmup"`
	WeightDecay  float64    `json:"weight_decay" yaml:"weight_decay"`
	Betas        [2]float64 `json:"betas" yaml:"betas"`
	MaxGradNorm  float64    `json:"max_grad_norm" yaml:"max_grad_norm"`
	EMA          ema.Config `json:"ema" yaml:"ema"`

	LogEvery    int `json:"log_every" yaml:"log_every"`
	SaveEvery   int `json:"save_every" yaml:"save_every"`
	SampleEvery int `json:"sample_every" yaml:"sample_every"`
	NumSamples  int `json:"num_samples" yaml:"num_samples"`
	SampleSteps int `json:"sample_steps" yaml:"sample_steps"`

	ResultsFolder string `json:"results_folder" yaml:"results_folder"`
	Checkpoint    string `json:"checkpoint" yaml:"checkpoint"` // file name inside ResultsFolder
	Resume        bool   `json:"resume" yaml:"resume"`
	History       bool   `json:"history" yaml:"history"` // write history.parquet
	Threads       int    `json:"threads" yaml:"threads"`
	Seed          uint64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Steps:         70000,
		BatchSize:     16,
		LearningRate:  3e-4,
		Schedule:      "constant",
		Betas:         [2]float64{0.9, 0.99},
		MaxGradNorm:   0.5,
		EMA:           ema.Config{Beta: 0.9999, UpdateAfterStep: 100, UpdateEvery: 10},
		LogEvery:      10,
		SaveEvery:     1000,
		SampleEvery:   1000,
		NumSamples:    16,
		ResultsFolder: "results",
		Checkpoint:    "model.ckpt",
		Seed:          42,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LearningRate == 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Schedule == "" {
		c.Schedule = d.Schedule
	}
	if c.Betas == [2]float64{} {
		c.Betas = d.Betas
	}
	if c.NumSamples == 0 {
		c.NumSamples = d.NumSamples
	}
	if c.ResultsFolder == "" {
		c.ResultsFolder = d.ResultsFolder
	}
	if c.Checkpoint == "" {
		c.Checkpoint = d.Checkpoint
	}
	c.EMA = c.EMA.WithDefaults()
	return c
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(c.Steps < 0, "steps must not be negative")
	catcher.NewWhen(c.BatchSize < 0, "batch_size must not be negative")
	catcher.NewWhen(c.LearningRate < 0, "learning_rate must not be negative")
	catcher.NewWhen(c.MaxGradNorm < 0, "max_grad_norm must not be negative")
	catcher.NewWhen(c.Betas[0] < 0 || c.Betas[0] >= 1 || c.Betas[1] < 0 || c.Betas[1] >= 1, "betas must be in [0, 1)")
	catcher.NewWhen(c.EMA.Beta < 0 || c.EMA.Beta >= 1, "ema.beta must be in [0, 1)")
	switch c.Schedule {
	case "", "constant", "warmup", "cosine":
	default:
		catcher.Errorf("unknown schedule %q", c.Schedule)
	}
	return errors.Wrap(catcher.Resolve(), "invalid training configuration")
}

func (c Config) schedule() optim.Schedule {
	switch c.Schedule {
	case "warmup":
		return optim.Warmup{Rate: c.LearningRate, Steps: c.Warmup}
	case "cosine":
		return optim.Cosine{Max: c.LearningRate, Min: c.MinLR, Total: c.Steps, Warmup: c.Warmup}
	}
	return optim.Constant(c.LearningRate)
}
