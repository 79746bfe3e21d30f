package main

import "encoding/json"
import "fmt"

import "github.com/pkg/errors"
import "github.com/urfave/cli"

import "github.com/neurlang/rectifiedflow/checkpoint"
import "github.com/neurlang/rectifiedflow/device"

func inspect() cli.Command {
	return cli.Command{
		Name:  "inspect",
		Usage: "print a checkpoint summary and the compute device",
		Flags: addCheckpointFlag(),
		Action: func(c *cli.Context) error {
			s, err := checkpoint.Inspect(c.String(checkpointFlag))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(struct {
				Checkpoint checkpoint.Summary `json:"checkpoint"`
				Device     device.Info        `json:"device"`
			}{s, device.Describe()}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encoding summary")
			}
			_, err = fmt.Fprintln(c.App.Writer, string(out))
			return errors.WithStack(err)
		},
	}
}
