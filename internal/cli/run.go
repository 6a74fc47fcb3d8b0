package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"coopsched/internal/config"
	"coopsched/internal/eventlog"
	"coopsched/internal/host"
	"coopsched/internal/job"
	"coopsched/internal/logging"
	"coopsched/internal/metrics"
	"coopsched/internal/sched"
	"coopsched/internal/tracing"
)

var errWorkload = errors.New("synthetic task failure")

type runOptions struct {
	tasks   int
	seed    uint64
	verbose bool
	timeout time.Duration
}

// summary counts how every submitted task ended.
type summary struct {
	RunID     string
	Completed int
	Cancelled int
	Failed    int
	Elapsed   time.Duration
}

func (s summary) finished() int { return s.Completed + s.Cancelled + s.Failed }

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic mixed-priority workload",
		Long: `Submits a random mix of chunked CPU work, sleeping work, delayed tasks,
cancellations and failures to the scheduler, runs the host loop until every
task has ended, and prints a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := runWorkload(cmd.Context(), cfg, logger, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed=%d cancelled=%d failed=%d elapsed=%s\n",
				sum.Completed, sum.Cancelled, sum.Failed, sum.Elapsed.Round(time.Microsecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.tasks, "tasks", 200, "Number of tasks to submit")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Seed for the workload generator")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every task event")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Give up if the workload has not drained by then")

	return cmd
}

func runWorkload(ctx context.Context, cfg config.Config, logger *slog.Logger, opts runOptions, out io.Writer) (summary, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var sum summary

	loop := host.NewLoop(
		host.WithPosting(host.ParsePosting(cfg.HostPosting)),
		host.WithErrorHandler(func(err error) {
			logging.Component(logger, "host").Error("host loop recovered panic", "error", err)
		}),
	)

	reg := prometheus.NewRegistry()
	schedOpts := []sched.Option{
		sched.WithClock(loop),
		sched.WithLogger(logger),
		sched.WithFrameInterval(cfg.FrameInterval()),
		sched.WithErrorHandler(func(err error) {
			logger.Warn("task failed", "error", err)
		}),
		sched.WithObserver(metrics.New(reg)),
		sched.WithObserver(tracing.NewObserver(nil)),
		sched.WithObserver(sched.ObserverFunc(func(ev sched.Event) {
			switch ev.Kind {
			case sched.EventComplete:
				sum.Completed++
			case sched.EventCancel:
				sum.Cancelled++
			case sched.EventError:
				sum.Failed++
			default:
				return
			}
			if sum.finished() == opts.tasks {
				cancel()
			}
		})),
	}
	if opts.verbose {
		schedOpts = append(schedOpts, sched.WithObserver(eventlog.NewConsole(out)))
	}
	if cfg.EventCSV != "" {
		el, err := eventlog.Create(cfg.EventCSV)
		if err != nil {
			return sum, err
		}
		defer func() {
			if err := el.Close(); err != nil {
				logger.Warn("closing event log", "path", cfg.EventCSV, "error", err)
			}
		}()
		sum.RunID = el.RunID()
		schedOpts = append(schedOpts, sched.WithObserver(el))
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	s := sched.New(loop, schedOpts...)
	if cfg.FrameRate > 0 {
		if err := s.SetFrameRate(cfg.FrameRate); err != nil {
			return sum, err
		}
	}

	logger.Info("starting workload",
		"tasks", opts.tasks,
		"seed", opts.seed,
		"posting", loop.Posting(),
		"frame_interval", s.FrameInterval(),
	)

	if opts.tasks <= 0 {
		return sum, nil
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	loop.Post(func() {
		submit(s, loop, rng, opts.tasks)
	})

	start := loop.Now()
	err := loop.Run(ctx)
	sum.Elapsed = loop.Now() - start

	if sum.finished() < opts.tasks {
		return sum, fmt.Errorf("workload stopped with %d of %d tasks finished: %w", sum.finished(), opts.tasks, err)
	}

	logger.Info("workload finished",
		"completed", sum.Completed,
		"cancelled", sum.Cancelled,
		"failed", sum.Failed,
		"elapsed", sum.Elapsed,
	)
	return sum, nil
}

// cancelledTaskLength is how long the tasks that get cancelled would run.
const cancelledTaskLength = 500 * time.Millisecond

var priorities = []sched.Priority{
	sched.Immediate,
	sched.UserBlocking,
	sched.Normal,
	sched.Low,
	sched.Idle,
}

// submit schedules n tasks. Every tenth task, offset by seven, fails. Every
// tenth, offset by nine, is a long sleep that gets cancelled within 20ms of
// submission, while it is still queued or running.
func submit(s *sched.Scheduler, loop *host.Loop, rng *rand.Rand, n int) {
	for i := range n {
		p := priorities[rng.IntN(len(priorities))]

		var opts []sched.ScheduleOption
		if rng.IntN(4) == 0 {
			opts = append(opts, sched.Delay(time.Duration(1+rng.IntN(50))*time.Millisecond))
		}

		var cb sched.Callback
		switch i % 10 {
		case 7:
			cb = func(bool) (sched.Result, error) {
				return sched.Done(), fmt.Errorf("item %d: %w", i, errWorkload)
			}
		case 3:
			cb = job.Sleep(s, time.Duration(1+rng.IntN(8))*time.Millisecond, time.Millisecond)
		case 9:
			// Expired tasks run without yielding, so keep these at a level
			// that outlasts them.
			p = sched.Low
			cb = job.Sleep(s, cancelledTaskLength, time.Millisecond)
		default:
			var acc uint64
			cb = job.Spin(s, 1000+rng.IntN(20000), func(j int) {
				acc = acc*31 + uint64(j)
			})
		}

		t := s.Schedule(p, cb, opts...)
		if i%10 == 9 {
			loop.AfterFunc(time.Duration(rng.IntN(20))*time.Millisecond, func() {
				s.Cancel(t)
			})
		}
	}
}
