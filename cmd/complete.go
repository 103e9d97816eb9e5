package cmd

import (
	"github.com/etnz/fxfolio/docs"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// Completion describes the command line for shell completion.
// Install it with COMP_INSTALL=1 fxf.
func Completion() *complete.Command {
	tables := predict.Files("*")
	sortKeys := predict.Set{"value", "investment", "daily", "ticker"}
	analyze := map[string]complete.Predictor{
		"o":    predict.Dirs("*"),
		"json": predict.Files("*.json"),
		"sort": sortKeys,
		"live": predict.Nothing,
	}
	watch := map[string]complete.Predictor{
		"schedule": predict.Something,
		"tz":       predict.Something,
	}
	for k, v := range analyze {
		watch[k] = v
	}

	return &complete.Command{
		Flags: map[string]complete.Predictor{
			"config":    predict.Files("*.yaml"),
			"log-level": predict.Set{"debug", "info", "warn", "error"},
			"raw":       predict.Nothing,
		},
		Sub: map[string]*complete.Command{
			"convert": {
				Flags: map[string]complete.Predictor{"o": predict.Dirs("*")},
				Args:  tables,
			},
			"analyze": {Flags: analyze, Args: tables},
			"watch":   {Flags: watch, Args: tables},
			"sample": {
				Flags: map[string]complete.Predictor{"d": predict.Dirs("*")},
			},
			"topic":    {Args: topics()},
			"help":     {},
			"flags":    {},
			"commands": {},
		},
	}
}

func topics() complete.Predictor {
	names, _ := docs.Topics()
	return predict.Set(names)
}
