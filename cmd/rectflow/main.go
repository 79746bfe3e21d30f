package main

import "os"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/level"
import "github.com/pkg/errors"
import "github.com/urfave/cli"

func main() {
	app := buildApp()
	err := app.Run(os.Args)
	grip.CatchEmergencyFatal(err)
}

func buildApp() *cli.App {
	app := cli.NewApp()

	app.Name = "rectflow"
	app.Usage = "train and sample rectified flow and mean flow models"
	app.Version = "0.1.0"

	app.Commands = []cli.Command{
		train(),
		sample(),
		inspect(),
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  levelFlag,
			Value: "info",
			Usage: "lowest visible log level: 'emergency|alert|critical|error|warning|notice|info|debug'",
		},
		cli.StringFlag{
			Name:  cpuProfileFlag,
			Usage: "write a CPU profile to this file",
		},
	}

	app.Before = func(c *cli.Context) error {
		if err := loggingSetup(app.Name, c.String(levelFlag)); err != nil {
			return errors.WithStack(err)
		}
		return startProfile(c.String(cpuProfileFlag))
	}
	app.After = func(*cli.Context) error {
		return stopProfile()
	}

	return app
}

// loggingSetup names the sender and sets its threshold.
func loggingSetup(name, logLevel string) error {
	sender := grip.GetSender()
	sender.SetName(name)

	lvl := sender.Level()
	lvl.Threshold = level.FromString(logLevel)
	return errors.WithStack(sender.SetLevel(lvl))
}
