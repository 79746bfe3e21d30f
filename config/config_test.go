package config

import "encoding/json"
import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/datasets"
import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/net/unet"
import "github.com/neurlang/rectifiedflow/trainer"

func writeFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverDefaults(t *testing.T) {
	path := writeFile(t, `
data:
  name: gaussians
  size: 512
objective:
  kind: mean
  prob_default_flow: 0.75
  adaptive_weight: false
train:
  steps: 10
  betas: [0.8, 0.95]
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gaussians", c.Data.Name)
	assert.Equal(t, 512, c.Data.Size)
	assert.Equal(t, KindMean, c.Objective.Kind)
	require.NotNil(t, c.Objective.ProbDefaultFlow)
	assert.Equal(t, 0.75, *c.Objective.ProbDefaultFlow)
	require.NotNil(t, c.Objective.AdaptiveWeight)
	assert.False(t, *c.Objective.AdaptiveWeight)
	assert.Equal(t, 10, c.Train.Steps)
	assert.Equal(t, [2]float64{0.8, 0.95}, c.Train.Betas)
	assert.Equal(t, trainer.DefaultConfig().BatchSize, c.Train.BatchSize)
	assert.Equal(t, 128, c.Model.Hidden)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "objective:\n  kindd: mean\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "objective:\n  kind: diffusion\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "objective:\n  kind: reflow\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	c := Default()
	p := 1.5
	c.Objective.ProbDefaultFlow = &p
	c.Objective.Clip = true
	c.Objective.ClipValues = [2]float64{1, -1}
	c.Train.Schedule = "linear"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prob_default_flow")
	assert.Contains(t, err.Error(), "clip_values")
	assert.Contains(t, err.Error(), "schedule")
}

func TestWriteRoundTrip(t *testing.T) {
	c := Default()
	c.Data.Name = "spiral"
	c.Objective.Consistency = true
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, c.Write(path))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestBuild(t *testing.T) {
	c := Default()
	c.Data = DataConfig{Name: "moons", Size: 64, Seed: 1}
	c.Objective.Loss = "pseudo_huber"
	c.Objective.Times = "cosmap"
	c.Objective.Immiscible = true
	c.Objective.SampleSteps = 8

	ds, err := c.BuildDataset()
	require.NoError(t, err)
	net, err := c.BuildNetwork(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, net.DimIn())
	assert.Equal(t, 2, net.DimCond())
	assert.Equal(t, 1, net.TimeInputs())

	obj, err := c.BuildObjective(ds)
	require.NoError(t, err)
	r, ok := obj.(*flow.Rectified)
	require.True(t, ok)
	assert.Equal(t, "pseudo_huber", r.Loss.Name())
	assert.Equal(t, "cosmap", r.Times.Name())
	assert.True(t, r.Immiscible)
	assert.Equal(t, 8, r.SampleSteps)
	assert.Equal(t, []int{2}, r.DataShape)

	c.Objective = Default().Objective
	c.Objective.Kind = KindMean
	net, err = c.BuildNetwork(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, net.TimeInputs())
	obj, err = c.BuildObjective(ds)
	require.NoError(t, err)
	m, ok := obj.(*flow.Mean)
	require.True(t, ok)
	assert.Equal(t, flow.DefaultLogitNormal, m.Times)

	c.Data.Name = "circles"
	_, err = c.BuildDataset()
	assert.Error(t, err)
}

func TestBuildReflow(t *testing.T) {
	dir := t.TempDir()
	src := Default()
	src.Data = DataConfig{Name: "checkerboard", Size: 128, Seed: 2}
	src.Model.Hidden = 16
	src.Objective.SampleSteps = 4
	src.Train.Steps = 2
	src.Train.BatchSize = 8
	src.Train.ResultsFolder = dir

	ds, err := src.BuildDataset()
	require.NoError(t, err)
	net, err := src.BuildNetwork(ds)
	require.NoError(t, err)
	obj, err := src.BuildObjective(ds)
	require.NoError(t, err)
	tr, err := trainer.New(obj, net, ds, src.Train)
	require.NoError(t, err)
	tr.RunConfig, err = json.Marshal(src)
	require.NoError(t, err)
	_, err = tr.TrainStep()
	require.NoError(t, err)
	path := filepath.Join(dir, "source.ckpt")
	require.NoError(t, tr.Save(path))

	c := src
	c.Objective.Kind = KindReflow
	c.Objective.Reflow.Source = path
	c.Objective.Reflow.Pairs = 16
	require.NoError(t, c.Validate())
	obj, err = c.BuildObjective(ds)
	require.NoError(t, err)
	r, ok := obj.(*flow.Reflow)
	require.True(t, ok)
	assert.Equal(t, 16, r.Pooled())
	assert.Equal(t, 4, r.Student.SampleSteps)
	assert.Equal(t, 1, r.TimeInputs())

	c.Objective.Reflow.SourceKind = KindMean
	c.Objective.Reflow.Pairs = 0
	_, err = c.BuildObjective(ds)
	assert.NoError(t, err)

	c.Objective.Reflow.Source = filepath.Join(dir, "missing.ckpt")
	_, err = c.BuildObjective(ds)
	assert.Error(t, err)
}

func TestBuildUNet(t *testing.T) {
	path := writeFile(t, `
data:
  name: shapes
  size: 8
model:
  kind: unet
  unet:
    base: 4
objective:
  kind: mean
  normalize: true
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Model.UNet.Kernel)
	ds, err := c.BuildDataset()
	require.NoError(t, err)
	network, err := c.BuildNetwork(ds)
	require.NoError(t, err)
	u, ok := network.(*unet.UNet)
	require.True(t, ok)
	assert.Equal(t, 3*datasets.ShapesSize*datasets.ShapesSize, u.DimIn())
	assert.Equal(t, len(datasets.ShapeClasses), u.DimCond())
	assert.Equal(t, 2, u.TimeInputs())
	assert.Equal(t, 4, u.Config().Base)

	moons := Default()
	moons.Model.Kind = NetworkUNet
	ds, err = moons.BuildDataset()
	require.NoError(t, err)
	_, err = moons.BuildNetwork(ds)
	assert.Error(t, err)

	moons.Model.Kind = "transformer"
	assert.Error(t, moons.Validate())
}
