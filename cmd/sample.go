package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/etnz/fxfolio"
	"github.com/google/subcommands"
)

// sampleCmd holds the flags for the 'sample' subcommand.
type sampleCmd struct {
	dir string
}

func (*sampleCmd) Name() string     { return "sample" }
func (*sampleCmd) Synopsis() string { return "write sample positions and transfers files" }
func (*sampleCmd) Usage() string {
	return `fxf sample [-d <dir>]

  Writes portfolio.csv and transfers.csv with a few example rows, to get started with
  'fxf analyze' and 'fxf convert transfers.csv'. Existing files are left untouched.
`
}

func (c *sampleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "d", ".", "Directory of the sample files")
}

func (c *sampleCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := writeSamples(c.dir, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing samples: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// writeSamples writes the sample files in dir and reports each of them to w.
func writeSamples(dir string, w io.Writer) error {
	samples := []struct{ name, content string }{
		{"portfolio.csv", fxfolio.SamplePositions},
		{"transfers.csv", fxfolio.SampleTransfers},
	}
	for _, s := range samples {
		path := filepath.Join(dir, s.name)
		written, err := fxfolio.WriteSample(path, s.content)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(w, "Created %s\n", path)
		} else {
			fmt.Fprintf(w, "%s already exists, left untouched\n", path)
		}
	}
	return nil
}
