package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/feedherald/internal/fetch"
	"github.com/ppiankov/feedherald/internal/metrics"
	"github.com/ppiankov/feedherald/internal/report"
	"github.com/ppiankov/feedherald/internal/watermark"
)

// WatermarkStore persists one watermark per source.
type WatermarkStore interface {
	LoadWatermark(ctx context.Context, source string, kind watermark.Kind) (watermark.Watermark, bool, error)
	SaveWatermark(ctx context.Context, w watermark.Watermark) error
}

// Runner owns an adapter's watermark and not-before gate across checks.
type Runner struct {
	adapter Adapter
	store   WatermarkStore
	gate    fetch.Gate
	log     logrus.FieldLogger
}

func NewRunner(a Adapter, st WatermarkStore, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{adapter: a, store: st, log: log.WithField("source", a.Name())}
}

func (r *Runner) Name() string { return r.adapter.Name() }

// NotBefore is the instant before which the source will not be requested.
func (r *Runner) NotBefore() time.Time { return r.gate.NotBefore() }

// Check runs one cycle and returns the reports it produced. Source-local
// failures are logged and yield no reports; only state persistence errors
// are returned. The watermark is written once, and only after a completed
// check.
func (r *Runner) Check(ctx context.Context) ([]*report.Report, error) {
	name := r.adapter.Name()
	if o := r.gate.Check(nowFunc()); o.Waiting() {
		r.log.WithField("until", o.Until()).Info("check deferred")
		metrics.SourceChecks.WithLabelValues(name, "deferred").Inc()
		return nil, nil
	}

	wm, found, err := r.store.LoadWatermark(ctx, name, r.adapter.Kind())
	if err != nil {
		return nil, err
	}
	if !found {
		wm = watermark.New(name, r.adapter.Kind())
		if err := r.store.SaveWatermark(ctx, wm); err != nil {
			return nil, fmt.Errorf("initialize watermark %s: %w", name, err)
		}
		r.log.Info("initialized watermark")
	}

	res, err := r.adapter.Check(ctx, wm.Clone())
	r.applyThrottle(res.Throttle)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.WithError(err).Warn("check failed")
		metrics.SourceChecks.WithLabelValues(name, "failed").Inc()
		return nil, nil
	}
	if res.Status == Deferred {
		r.log.WithField("until", res.Throttle.Until()).Info("check deferred")
		metrics.SourceChecks.WithLabelValues(name, "deferred").Inc()
		return nil, nil
	}

	next := res.Next
	next.Source, next.Kind = name, r.adapter.Kind()
	if err := r.store.SaveWatermark(ctx, next); err != nil {
		return nil, fmt.Errorf("save watermark %s: %w", name, err)
	}

	metrics.SourceChecks.WithLabelValues(name, "completed").Inc()
	metrics.ReportsBuilt.WithLabelValues(name).Add(float64(len(res.Reports)))
	if res.Skipped > 0 {
		metrics.ItemsSkipped.WithLabelValues(name).Add(float64(res.Skipped))
	}
	r.log.WithFields(logrus.Fields{
		"new":     len(res.New),
		"updated": len(res.Updated),
		"skipped": res.Skipped,
		"status":  res.Status.String(),
	}).Info("check completed")
	return res.Reports, nil
}

func (r *Runner) applyThrottle(o fetch.Outcome) {
	if !o.Waiting() {
		return
	}
	r.gate.Apply(o)
	metrics.SourceNotBefore.WithLabelValues(r.adapter.Name()).Set(float64(r.gate.NotBefore().Unix()))
}
