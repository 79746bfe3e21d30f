// Package config loads the YAML run configuration and builds the dataset,
// network and objective it describes.
package config

import "os"

import "github.com/mongodb/grip"
import "github.com/pkg/errors"
import yaml "gopkg.in/yaml.v2"

import "github.com/neurlang/rectifiedflow/net/feedforward"
import "github.com/neurlang/rectifiedflow/net/unet"
import "github.com/neurlang/rectifiedflow/trainer"

// Objective kinds.
const (
	KindRectified = "rectified"
	KindMean      = "mean"
	KindReflow    = "reflow"
)

// Network kinds.
const (
	NetworkFeedforward = feedforward.Kind
	NetworkUNet        = unet.Kind
)

// DataConfig selects a synthetic dataset.
type DataConfig struct {
	Name string `json:"name" yaml:"name"` // moons, checkerboard, gaussians, spiral or shapes
	Size int    `json:"size" yaml:"size"`
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ReflowConfig points a reflow run at its frozen source.
type ReflowConfig struct {
	Source         string  `json:"source" yaml:"source"`           // checkpoint of the source run
	SourceKind     string  `json:"source_kind" yaml:"source_kind"` // objective the source was trained with
	Steps          int     `json:"steps" yaml:"steps"`
	Method         string  `json:"method" yaml:"method"`
	Pairs          int     `json:"pairs" yaml:"pairs"` // precomputed pool size, 0 samples pairs per batch
	MemoryFraction float64 `json:"memory_fraction" yaml:"memory_fraction"`
}

// ObjectiveConfig describes the training objective.
type ObjectiveConfig struct {
	Kind      string  `json:"kind" yaml:"kind"`
	Predict   string  `json:"predict" yaml:"predict"` // flow or noise
	Times     string  `json:"times" yaml:"times"`     // uniform, cosmap or logit_normal, empty for the objective default
	Loss      string  `json:"loss" yaml:"loss"`       // mse or pseudo_huber
	NoiseStd  float64 `json:"noise_std" yaml:"noise_std"`
	Normalize bool    `json:"normalize" yaml:"normalize"` // data in [0,1] is trained in [-1,1]

	Clip           bool       `json:"clip" yaml:"clip"`
	ClipValues     [2]float64 `json:"clip_values" yaml:"clip_values"`
	ClipFlow       bool       `json:"clip_flow" yaml:"clip_flow"`
	ClipFlowValues [2]float64 `json:"clip_flow_values" yaml:"clip_flow_values"`
	Immiscible     bool       `json:"immiscible" yaml:"immiscible"`

	Consistency       bool    `json:"consistency" yaml:"consistency"`
	ConsistencyDelta  float64 `json:"consistency_delta" yaml:"consistency_delta"`
	ConsistencyAlpha  float64 `json:"consistency_alpha" yaml:"consistency_alpha"`
	ConsistencyWeight float64 `json:"consistency_weight" yaml:"consistency_weight"`

	ProbDefaultFlow *float64 `json:"prob_default_flow,omitempty" yaml:"prob_default_flow,omitempty"`
	AdaptiveWeight  *bool    `json:"adaptive_weight,omitempty" yaml:"adaptive_weight,omitempty"`

	SampleSteps int    `json:"sample_steps" yaml:"sample_steps"`
	Method      string `json:"method" yaml:"method"`

	Reflow ReflowConfig `json:"reflow" yaml:"reflow"`
}

// ModelConfig selects the velocity network. Feedforward settings sit directly
// in the model section, U-Net settings under unet. Data, conditioning and
// time sizes are filled in from the dataset and objective.
type ModelConfig struct {
	Kind               string `json:"kind" yaml:"kind"`
	feedforward.Config `yaml:",inline"`
	UNet               unet.Config `json:"unet" yaml:"unet"`
}

// Config is a complete training run.
type Config struct {
	Data        DataConfig         `json:"data" yaml:"data"`
	Model       ModelConfig     `json:"model" yaml:"model"`
	Objective   ObjectiveConfig `json:"objective" yaml:"objective"`
	Train       trainer.Config  `json:"train" yaml:"train"`
	MetricsAddr string          `json:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns a small two dimensional run.
func Default() Config {
	return Config{
		Data: DataConfig{Name: "moons", Size: 10000},
		Model: ModelConfig{
			Kind: NetworkFeedforward,
			Config: feedforward.Config{
				Hidden:    128,
				Depth:     3,
				TimeFreqs: 4,
				ZeroOut:   true,
			},
			UNet: unet.Config{
				Base:      16,
				Kernel:    3,
				TimeFreqs: 4,
				ZeroOut:   true,
			},
		},
		Objective: ObjectiveConfig{
			Kind:              KindRectified,
			Predict:           "flow",
			Loss:              "mse",
			NoiseStd:          1,
			ClipValues:        [2]float64{-1, 1},
			ClipFlowValues:    [2]float64{-3, 3},
			ConsistencyDelta:  1e-3,
			ConsistencyAlpha:  1e-5,
			ConsistencyWeight: 1,
			Method:            "midpoint",
			Reflow:            ReflowConfig{SourceKind: KindRectified, MemoryFraction: 0.25},
		},
		Train: trainer.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, c.Validate()
}

// Write dumps c as YAML.
func (c Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return errors.WithStack(os.WriteFile(path, data, 0o644))
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(c.Data.Size <= 0, "data.size must be positive")
	switch c.Model.Kind {
	case "", NetworkFeedforward:
		catcher.NewWhen(c.Model.Hidden <= 0, "model.hidden must be positive")
		catcher.NewWhen(c.Model.Depth <= 0, "model.depth must be positive")
	case NetworkUNet:
		catcher.NewWhen(c.Model.UNet.Base <= 0, "model.unet.base must be positive")
		catcher.NewWhen(c.Model.UNet.Kernel < 0 || (c.Model.UNet.Kernel > 0 && c.Model.UNet.Kernel%2 == 0), "model.unet.kernel must be odd")
	default:
		catcher.Errorf("unknown model kind %q", c.Model.Kind)
	}
	catcher.NewWhen(c.Objective.NoiseStd < 0, "objective.noise_std must not be negative")
	catcher.NewWhen(c.Objective.SampleSteps < 0, "objective.sample_steps must not be negative")
	catcher.NewWhen(c.Objective.Clip && c.Objective.ClipValues[0] >= c.Objective.ClipValues[1], "objective.clip_values must be increasing")
	catcher.NewWhen(c.Objective.ClipFlow && c.Objective.ClipFlowValues[0] >= c.Objective.ClipFlowValues[1], "objective.clip_flow_values must be increasing")
	if p := c.Objective.ProbDefaultFlow; p != nil {
		catcher.NewWhen(*p < 0 || *p > 1, "objective.prob_default_flow must be in [0, 1]")
	}
	switch c.Objective.Kind {
	case KindRectified, KindMean:
	case KindReflow:
		catcher.NewWhen(c.Objective.Reflow.Source == "", "objective.reflow.source must name a checkpoint")
		catcher.NewWhen(c.Objective.Reflow.SourceKind == KindReflow, "objective.reflow.source_kind must not be reflow")
	default:
		catcher.Errorf("unknown objective kind %q", c.Objective.Kind)
	}
	catcher.Add(c.Train.Validate())
	return errors.Wrap(catcher.Resolve(), "invalid configuration")
}
