package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/glove"
)

type Options struct {
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`
	Config  string `short:"c" long:"config" default:"glove.json" description:"Configuration file"`

	Setup  SetupCommand  `command:"setup" description:"Select the glove port and mapping profile"`
	Stream StreamCommand `command:"stream" alias:"run" description:"Stream glove data, calibrate and map poses"`
	Replay ReplayCommand `command:"replay" description:"Run a recorded telemetry file through the pipeline"`
	Probe  ProbeCommand  `command:"probe" description:"Print raw packets from a port with their parsed fields"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "glove - Sensor glove telemetry, calibration and hand pose mapping"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if opts.Verbose {
			log.SetLevel(log.DebugLevel)
		}
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist.
func loadConfig() (*glove.Config, error) {
	if _, err := os.Stat(opts.Config); os.IsNotExist(err) {
		log.WithField("file", opts.Config).Debug("no config file, using defaults")
		return glove.DefaultConfig(), nil
	}
	return glove.LoadConfigFrom(opts.Config)
}
