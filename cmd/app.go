// Package cmd implements the fxf command line application.
package cmd

import (
	"flag"

	"github.com/google/subcommands"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&convertCmd{}, "transfers")

	c.Register(&analyzeCmd{}, "portfolio")
	c.Register(&watchCmd{}, "portfolio")

	c.Register(&sampleCmd{}, "")
	c.Register(&topicCmd{}, "")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "", "Path to the configuration file. Defaults to fxfolio.yaml in the working directory, then in $HOME/.fxfolio")
var logLevel = flag.String("log-level", "", "Overrides logging.level: debug, info, warn or error")
var raw = flag.Bool("raw", false, "Print reports as plain markdown instead of rendering them")
