package main

import "context"
import "encoding/json"
import "os"
import "os/signal"
import "syscall"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"
import "github.com/urfave/cli"

import "github.com/neurlang/rectifiedflow/config"
import "github.com/neurlang/rectifiedflow/device"
import "github.com/neurlang/rectifiedflow/metrics"
import "github.com/neurlang/rectifiedflow/trainer"

func train() cli.Command {
	return cli.Command{
		Name:  "train",
		Usage: "train a flow on a synthetic dataset",
		Flags: mergeFlags(
			addStepsFlag("override the number of optimizer steps"),
			[]cli.Flag{
				cli.StringFlag{
					Name:  joinFlagNames(configFlag, "f"),
					Usage: "YAML run configuration, defaults when empty",
				},
				cli.StringFlag{
					Name:  datasetFlag,
					Usage: "synthetic dataset: moons|checkerboard|gaussians|spiral|shapes",
				},
				cli.StringFlag{
					Name:  objectiveFlag,
					Usage: "objective: rectified|mean|reflow",
				},
				cli.StringFlag{
					Name:  metricsAddrFlag,
					Usage: "serve prometheus metrics on this address, e.g. :9090",
				},
				cli.StringFlag{
					Name:  resultsFlag,
					Usage: "override the results folder",
				},
				cli.BoolFlag{
					Name:  resumeFlag,
					Usage: "resume from the checkpoint in the results folder",
				},
			}),
		Action: func(c *cli.Context) error {
			cfg, err := runConfig(c)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runTraining(ctx, cfg)
		},
	}
}

// runConfig loads the configuration file and applies flag overrides.
func runConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if v := c.String(datasetFlag); v != "" {
		cfg.Data.Name = v
	}
	if v := c.String(objectiveFlag); v != "" {
		cfg.Objective.Kind = v
	}
	if v := c.String(metricsAddrFlag); v != "" {
		cfg.MetricsAddr = v
	}
	if v := c.String(resultsFlag); v != "" {
		cfg.Train.ResultsFolder = v
	}
	if v := c.Int(stepsFlag); v > 0 {
		cfg.Train.Steps = v
	}
	if c.Bool(resumeFlag) {
		cfg.Train.Resume = true
	}
	return cfg, errors.WithStack(cfg.Validate())
}

func runTraining(ctx context.Context, cfg config.Config) error {
	ds, err := cfg.BuildDataset()
	if err != nil {
		return err
	}
	net, err := cfg.BuildNetwork(ds)
	if err != nil {
		return err
	}
	obj, err := cfg.BuildObjective(ds)
	if err != nil {
		return err
	}
	t, err := trainer.New(obj, net, ds, cfg.Train)
	if err != nil {
		return err
	}
	if t.RunConfig, err = json.Marshal(cfg); err != nil {
		return errors.Wrap(err, "encoding run configuration")
	}
	info := device.Describe()
	t.Meta["dataset"] = cfg.Data.Name
	t.Meta["device"] = info.String()

	fields := info.Fields()
	fields["message"] = "device"
	grip.Info(fields)
	grip.Info(message.Fields{"message": "dataset", "dataset": ds.String(), "objective": obj.Name()})

	if cfg.MetricsAddr != "" {
		collectors := metrics.NewCollectors("rectflow")
		t.WithMetrics(collectors)
		go func() {
			grip.Warning(message.WrapError(collectors.Serve(ctx, cfg.MetricsAddr), message.Fields{
				"message": "metrics server stopped",
				"addr":    cfg.MetricsAddr,
			}))
		}()
	}

	err = t.Run(ctx)
	if errors.Is(err, context.Canceled) {
		grip.Notice(message.Fields{"message": "stopped on signal", "step": t.Step(), "checkpoint": t.CheckpointPath()})
		return nil
	}
	return err
}
