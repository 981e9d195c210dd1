package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/metrics"
	"github.com/ppiankov/feedherald/internal/scheduler"
)

var loopMetricsAddr string

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Poll sources and drain channel queues until interrupted",
	Long: "loop checks each source and posts from each channel on its own period. " +
		"Reports still need review before they reach a queue.",
	RunE: loopAction,
}

func init() {
	loopCmd.Flags().StringVar(&loopMetricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides loop.metrics_addr)")
	rootCmd.AddCommand(loopCmd)
}

func loopAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := a.schedule(ctx)
	if err != nil {
		return err
	}

	addr := loopMetricsAddr
	if addr == "" {
		addr = a.cfg.Loop.MetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, a)
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
	}

	return sched.Run(ctx)
}

// schedule registers a check task per source and a posting task per channel.
func (a *app) schedule(ctx context.Context) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.cfg.Loop.Period.Duration, a.log)

	runners, sources, err := a.runners(nil)
	if err != nil {
		return nil, err
	}
	for i, r := range runners {
		err := sched.Add(scheduler.Task{
			Name:   "source/" + r.Name(),
			Period: sources[i].Period.Duration,
			Run: func(ctx context.Context) error {
				n, err := a.collect(ctx, r)
				if err == nil && n > 0 {
					a.log.WithField("source", r.Name()).WithField("new", n).Info("reports awaiting review")
				}
				return err
			},
		})
		if err != nil {
			return nil, err
		}
	}

	chans, configs, err := a.channels(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i, ch := range chans {
		batch := configs[i].Batch
		err := sched.Add(scheduler.Task{
			Name:   "channel/" + ch.Name(),
			Period: configs[i].Period.Duration,
			Run: func(ctx context.Context) error {
				res, err := ch.PostNext(ctx, batch)
				if err != nil {
					return err
				}
				return errors.Join(res.Errors...)
			},
		})
		if err != nil {
			return nil, err
		}
	}

	err = sched.Add(scheduler.Task{
		Name:   "prune",
		Period: 24 * time.Hour,
		Run: func(ctx context.Context) error {
			_, err := a.db.PruneReports(ctx, a.cfg.Storage.RetainDays)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func serveMetrics(addr string, a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics listener failed")
		}
	}()
	a.log.WithField("addr", addr).Info("serving metrics")
	return srv
}
