package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/fxfolio/docs"
	"github.com/etnz/fxfolio/logger"
	"github.com/google/subcommands"
)

type topicCmd struct{}

func (*topicCmd) Name() string     { return "topic" }
func (*topicCmd) Synopsis() string { return "show documentation" }
func (*topicCmd) Usage() string {
	return `fxf topic [<topic>...]

  Shows the documentation of the given topics, the list of topics without any.
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	topics := f.Args()
	if len(topics) == 0 {
		topics = []string{docs.Index}
	}

	doc, err := docs.Concat(topics...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading doc: %v\n", err)
		return subcommands.ExitFailure
	}
	e := &env{out: os.Stdout, raw: *raw, log: logger.Nop()}
	e.printMarkdown(doc)

	return subcommands.ExitSuccess
}
