package main

import "bytes"
import "encoding/json"
import "os"
import "path/filepath"
import "testing"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/level"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/datasets"

func TestLoggingSetup(t *testing.T) {
	require.NoError(t, loggingSetup("rectflow-test", "warning"))
	assert.Equal(t, "rectflow-test", grip.GetSender().Name())
	assert.Equal(t, level.Warning, grip.GetSender().Level().Threshold)
	require.NoError(t, loggingSetup("rectflow-test", "info"))
}

func TestApp(t *testing.T) {
	app := buildApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"train", "sample", "inspect"}, names)
}

func TestTrainSampleInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
data:
  name: moons
  size: 128
model:
  hidden: 16
  depth: 2
train:
  steps: 4
  batch_size: 16
  save_every: 2
  sample_every: 0
  log_every: 2
  threads: 2
`), 0o644))
	results := filepath.Join(dir, "results")

	app := buildApp()
	require.NoError(t, app.Run([]string{"rectflow", "--level", "error", "train",
		"--config", cfgPath, "--objective", "mean", "--results", results}))
	ckpt := filepath.Join(results, "model.ckpt")
	assert.FileExists(t, ckpt)

	out := filepath.Join(dir, "moons.png")
	app = buildApp()
	require.NoError(t, app.Run([]string{"rectflow", "--level", "error", "sample",
		"--checkpoint", ckpt, "--out", out, "--n", "32", "--class", "1"}))
	assert.FileExists(t, out)

	var buf bytes.Buffer
	app = buildApp()
	app.Writer = &buf
	require.NoError(t, app.Run([]string{"rectflow", "--level", "error", "inspect", "--checkpoint", ckpt}))
	var doc struct {
		Checkpoint struct {
			Step   int  `json:"step"`
			HasEMA bool `json:"has_ema"`
		} `json:"checkpoint"`
		Device struct {
			Kind string `json:"kind"`
		} `json:"device"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 4, doc.Checkpoint.Step)
	assert.True(t, doc.Checkpoint.HasEMA)
	assert.NotEmpty(t, doc.Device.Kind)

	app = buildApp()
	assert.Error(t, app.Run([]string{"rectflow", "--level", "error", "sample",
		"--checkpoint", ckpt, "--out", out, "--class", "7"}))
}

func TestSampleCond(t *testing.T) {
	cond, err := sampleCond(datasets.Checkerboard(8, 1), 4, -1, nil)
	require.NoError(t, err)
	assert.Nil(t, cond)

	ds := datasets.Moons(8, 0.05, 1)
	cond, err = sampleCond(ds, 3, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 0, 1, 0}, cond.Data)

	cond, err = sampleCond(ds, 2, -1, func(int) int { return 1 })
	require.NoError(t, err)
	row := make([]float64, 2)
	ds.Cond(1, row)
	assert.Equal(t, row, cond.Row(0))
	assert.Equal(t, row, cond.Row(1))

	_, err = sampleCond(ds, 2, 2, nil)
	assert.Error(t, err)
}

func TestTrainSampleImages(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
data:
  name: shapes
  size: 24
model:
  kind: unet
  unet:
    base: 2
    time_freqs: 1
objective:
  kind: mean
  normalize: true
train:
  steps: 2
  batch_size: 4
  save_every: 2
  sample_every: 0
  log_every: 1
  threads: 1
`), 0o644))
	results := filepath.Join(dir, "results")

	app := buildApp()
	require.NoError(t, app.Run([]string{"rectflow", "--level", "error", "train",
		"--config", cfgPath, "--results", results}))
	ckpt := filepath.Join(results, "model.ckpt")
	require.FileExists(t, ckpt)

	out := filepath.Join(dir, "shapes.png")
	app = buildApp()
	require.NoError(t, app.Run([]string{"rectflow", "--level", "error", "sample",
		"--checkpoint", ckpt, "--out", out, "--n", "4", "--class", "2"}))
	assert.FileExists(t, out)
}
