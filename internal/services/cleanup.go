package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
)

const (
	defaultCleanupTimeout = 30 * time.Second
	cleanupParallelism    = 4
)

// AlertSink receives cleanup failures that need a human.
type AlertSink interface {
	NotifyCompensationFailure(ctx context.Context, alert CompensationAlert) error
}

// CleanupRunner deletes remote media after the owning database change has
// committed. Failures never reach the request; they are logged, counted and
// forwarded to the alert sink.
type CleanupRunner struct {
	media   MediaHost
	log     *logger.Logger
	metrics *metrics.Metrics
	alerts  AlertSink
	timeout time.Duration

	wg sync.WaitGroup
}

func NewCleanupRunner(media MediaHost, log *logger.Logger, m *metrics.Metrics, alerts AlertSink) *CleanupRunner {
	if log == nil {
		log = logger.Nop()
	}
	return &CleanupRunner{
		media:   media,
		log:     log,
		metrics: m,
		alerts:  alerts,
		timeout: defaultCleanupTimeout,
	}
}

// DeleteAssets schedules deletion of refs in the background.
func (r *CleanupRunner) DeleteAssets(ctx context.Context, reason string, refs ...string) {
	refs = nonEmpty(refs)
	if r == nil || r.media == nil || len(refs) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.run(runCtx, reason, refs)
	}()
}

func (r *CleanupRunner) run(ctx context.Context, reason string, refs []string) {
	var (
		mu     sync.Mutex
		errs   error
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupParallelism)
	for _, ref := range refs {
		g.Go(func() error {
			if err := r.media.Delete(gctx, ref); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				failed = append(failed, ref)
				mu.Unlock()
			}
			// Keep going on failure; every asset gets its attempt.
			return nil
		})
	}
	_ = g.Wait()

	if errs == nil {
		return
	}

	logCtx := r.log.WithFields(ctx, map[string]any{
		"reason": reason,
		"assets": failed,
	})
	r.log.Error(logCtx, "cleanup.failed", errs)

	if r.metrics != nil {
		r.metrics.CompensationFailures.WithLabelValues(reason).Add(float64(len(failed)))
	}
	if r.alerts != nil {
		if err := r.alerts.NotifyCompensationFailure(ctx, CompensationAlert{Reason: reason, Assets: failed, Err: errs}); err != nil {
			r.log.Error(logCtx, "cleanup.alert_failed", err)
		}
	}
}

// Wait blocks until every scheduled cleanup has finished.
func (r *CleanupRunner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func nonEmpty(refs []string) []string {
	out := refs[:0:0]
	for _, ref := range refs {
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}
