package main

import "encoding/json"
import "fmt"
import "time"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"
import "github.com/urfave/cli"

import "github.com/neurlang/rectifiedflow/checkpoint"
import "github.com/neurlang/rectifiedflow/config"
import "github.com/neurlang/rectifiedflow/datasets"
import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/net"
import "github.com/neurlang/rectifiedflow/tensor"
import "github.com/neurlang/rectifiedflow/visual"

func sample() cli.Command {
	return cli.Command{
		Name:  "sample",
		Usage: "draw samples from the EMA weights of a checkpoint",
		Flags: mergeFlags(
			addCheckpointFlag(),
			addStepsFlag("integration steps, the objective default when zero"),
			[]cli.Flag{
				cli.StringFlag{
					Name:  joinFlagNames(outFlag, "o"),
					Usage: "PNG file to write",
					Value: "samples.png",
				},
				cli.IntFlag{
					Name:  numFlag,
					Usage: "number of samples",
					Value: 64,
				},
				cli.IntFlag{
					Name:  classFlag,
					Usage: "condition every sample on this class, random dataset classes when negative",
					Value: -1,
				},
				cli.Uint64Flag{
					Name:  seedFlag,
					Usage: "noise seed",
					Value: 1,
				},
			}),
		Action: func(c *cli.Context) error {
			start := time.Now()
			path := c.String(checkpointFlag)
			network, cfg, err := loadTrained(path)
			if err != nil {
				return err
			}
			ds, err := cfg.BuildDataset()
			if err != nil {
				return err
			}
			obj, err := cfg.SamplingObjective(ds.Shape())
			if err != nil {
				return err
			}
			n := c.Int(numFlag)
			rng := tensor.NewRand(c.Uint64(seedFlag))
			cond, err := sampleCond(ds, n, c.Int(classFlag), rng.IntN)
			if err != nil {
				return err
			}
			out, err := obj.Sample(network, flow.SampleOptions{
				Batch: n,
				Steps: c.Int(stepsFlag),
				Cond:  cond,
				Rng:   rng,
			})
			if err != nil {
				return errors.Wrapf(err, "sampling %s", path)
			}
			if err := saveSamples(c.String(outFlag), out, ds.Shape()); err != nil {
				return err
			}
			grip.Info(message.Fields{
				"message":   "samples written",
				"out":       c.String(outFlag),
				"n":         n,
				"objective": obj.Name(),
				"elapsed":   time.Since(start).String(),
			})
			return nil
		},
	}
}

// loadTrained restores the EMA network of a checkpoint and the run
// configuration stored with it.
func loadTrained(path string) (net.Network, config.Config, error) {
	cfg := config.Default()
	ck, err := checkpoint.Load(path)
	if err != nil {
		return nil, cfg, err
	}
	network, err := net.FromJSON(ck.Model)
	if err != nil {
		return nil, cfg, errors.Wrapf(err, "decoding %s", path)
	}
	if ck.EMA != nil {
		if err := network.Load(ck.EMA.Shadow); err != nil {
			return nil, cfg, errors.Wrapf(err, "loading EMA weights of %s", path)
		}
	}
	if len(ck.Config) > 0 {
		if err := json.Unmarshal(ck.Config, &cfg); err != nil {
			return nil, cfg, errors.Wrapf(err, "decoding configuration of %s", path)
		}
	}
	return network, cfg, nil
}

// sampleCond picks the conditioning rows for n samples, nil for
// unconditional datasets.
func sampleCond(ds datasets.Dataset, n, class int, pick func(int) int) (*tensor.Tensor, error) {
	cd, ok := ds.(datasets.Conditional)
	if !ok || cd.CondDim() == 0 {
		return nil, nil
	}
	if class >= cd.CondDim() {
		return nil, fmt.Errorf("class %d out of range, dataset has %d", class, cd.CondDim())
	}
	if class >= 0 {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = class
		}
		return datasets.OneHot(labels, cd.CondDim()), nil
	}
	cond := tensor.Zeros(n, cd.CondDim())
	for i := 0; i < n; i++ {
		cd.Cond(pick(cd.Len()), cond.Row(i))
	}
	return cond, nil
}

func saveSamples(path string, out *tensor.Tensor, shape []int) error {
	if len(shape) == 1 && shape[0] == 2 {
		return visual.SaveScatter(path, out, 512, 0)
	}
	return visual.SaveGrid(path, out, shape, 0, 4)
}
