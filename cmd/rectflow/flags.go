package main

import "strings"

import "github.com/urfave/cli"

const (
	levelFlag      = "level"
	cpuProfileFlag = "cpuprofile"

	configFlag      = "config"
	datasetFlag     = "dataset"
	objectiveFlag   = "objective"
	metricsAddrFlag = "metrics-addr"
	resumeFlag      = "resume"
	stepsFlag       = "steps"
	resultsFlag     = "results"

	checkpointFlag = "checkpoint"
	outFlag        = "out"
	numFlag        = "n"
	classFlag      = "class"
	seedFlag       = "seed"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

func mergeFlags(in ...[]cli.Flag) []cli.Flag {
	out := []cli.Flag{}

	for idx := range in {
		out = append(out, in[idx]...)
	}

	return out
}

func addCheckpointFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(checkpointFlag, "c"),
		Usage: "path to a checkpoint",
		Value: "results/model.ckpt",
	})
}

func addStepsFlag(usage string, flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.IntFlag{
		Name:  stepsFlag,
		Usage: usage,
	})
}
