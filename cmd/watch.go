package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // -tz on hosts without a zoneinfo database

	"github.com/etnz/fxfolio"
	"github.com/google/subcommands"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs every 30 minutes during US market hours, on week days.
const DefaultSchedule = "*/30 9-16 * * 1-5"

// watchCmd holds the flags for the 'watch' subcommand.
type watchCmd struct {
	analyzeCmd
	schedule string
	timezone string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "run analyze on a schedule until interrupted" }
func (*watchCmd) Usage() string {
	return `fxf watch [-schedule <cron spec>] [-tz <zone>] [analyze flags] [<positions file>]

  Runs the analysis on a cron schedule (minute hour day month weekday) until interrupted.
  A run that is still going when the next one is due skips it.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	c.analyzeCmd.SetFlags(f)
	f.StringVar(&c.schedule, "schedule", DefaultSchedule, "Cron schedule of the runs")
	f.StringVar(&c.timezone, "tz", "America/New_York", "Time zone of the schedule")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts, err := c.options(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		return subcommands.ExitUsageError
	}
	e, err := loadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := e.watch(ctx, c.schedule, c.timezone, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error watching %q: %v\n", opts.input, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// cronLogger routes the scheduler messages to the debug level.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Printf(format string, args ...interface{}) { l.log.Debugf(format, args...) }

// newScheduler returns a scheduler running job on spec, in the zone tz.
func (e *env) newScheduler(spec, tz string, job func()) (*cron.Cron, error) {
	logger := cron.VerbosePrintfLogger(cronLogger{e.log})
	opts := []cron.Option{cron.WithLogger(logger)}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		opts = append(opts, cron.WithLocation(loc))
	}
	c := cron.New(opts...)
	wrapped := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(job))
	if _, err := c.AddJob(spec, wrapped); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

// watch runs the analysis on schedule until ctx is done.
// A failed run is logged and does not stop the next ones, except for fatal input errors.
func (e *env) watch(ctx context.Context, spec, tz string, opts analyzeOptions) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c, err := e.newScheduler(spec, tz, func() {
		if _, err := e.analyze(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return
			}
			var ie *fxfolio.InputError
			if errors.As(err, &ie) {
				cancel(err)
				return
			}
			e.log.Errorw("analysis failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	e.log.Infow("watching portfolio", "schedule", spec, "tz", tz, "file", opts.input)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	e.log.Infow("watch stopped")

	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
