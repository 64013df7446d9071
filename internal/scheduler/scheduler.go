package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
	"github.com/guildlytics/guildlytics-backend/pkg/metrics"
)

// MinInterval is the floor for flush cadences. Configured intervals below it
// are clamped and logged, never rejected.
const MinInterval = time.Second

const defaultShutdownGrace = 30 * time.Second

// A warn log fires once the same category fails this many cycles in a row,
// so sustained outages stand out from one-off transient failures.
const warnAfterConsecutiveFailures = 3

// Queue is the buffer surface the scheduler drains.
type Queue interface {
	Drain(category events.Category) []events.Record
	Requeue(category events.Category, records []events.Record)
	Size(category events.Category) int
}

// Upserter commits a drained batch.
type Upserter interface {
	Upsert(ctx context.Context, category events.Category, batch []events.Record) (int, error)
}

// ServiceParams configure the flush scheduler.
type ServiceParams struct {
	Logger        *logger.Logger
	Queue         Queue
	Sink          Upserter
	Metrics       *metrics.FlushMetrics
	ShutdownGrace time.Duration
}

// Service runs one independent flush cycle per registered category. A
// category's cycles never overlap: the loop body blocks the next tick until
// the current drain+write completes. Failures requeue the batch and wait for
// the next interval; there is no tight retry loop.
type Service struct {
	logg    *logger.Logger
	queue   Queue
	sink    Upserter
	metrics *metrics.FlushMetrics
	grace   time.Duration
	cycles  []*cycle
}

type cycle struct {
	category events.Category
	interval time.Duration

	// touched only by the cycle's own goroutine, and by the final flush
	// after every goroutine has exited
	failures int
}

// NewService builds a flush scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	grace := params.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return &Service{
		logg:    params.Logger,
		queue:   params.Queue,
		sink:    params.Sink,
		metrics: params.Metrics,
		grace:   grace,
	}, nil
}

// Register adds a periodic cycle for the category. Must be called before Run.
func (s *Service) Register(category events.Category, interval time.Duration) error {
	if !category.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot schedule unknown category %q", category))
	}
	for _, c := range s.cycles {
		if c.category == category {
			return pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("category %q registered twice", category))
		}
	}
	if interval < MinInterval {
		ctx := s.logg.WithFields(context.Background(), map[string]any{
			"category":   category.String(),
			"configured": interval.String(),
			"clamped_to": MinInterval.String(),
		})
		s.logg.Warn(ctx, "flush interval below floor; clamping")
		interval = MinInterval
	}
	s.cycles = append(s.cycles, &cycle{category: category, interval: interval})
	return nil
}

// Run starts every registered cycle and blocks until the context is
// canceled, then performs one final best-effort flush per category bounded
// by the shutdown grace period. The returned error aggregates final-flush
// failures; records that fail the final write are lost and logged as such.
func (s *Service) Run(ctx context.Context) error {
	if len(s.cycles) == 0 {
		return pkgerrors.New(pkgerrors.CodeConfig, "no categories registered")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Info(s.logg.WithField(ctx, "categories", len(s.cycles)), "flush scheduler starting")

	var wg sync.WaitGroup
	for _, c := range s.cycles {
		wg.Add(1)
		go func(c *cycle) {
			defer wg.Done()
			s.runLoop(ctx, c)
		}(c)
	}
	wg.Wait()

	return s.finalFlush()
}

func (s *Service) runLoop(ctx context.Context, c *cycle) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, c)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, c *cycle) {
	ctx = s.logg.WithCategory(ctx, c.category.String())

	batch := s.queue.Drain(c.category)
	if len(batch) == 0 {
		s.logg.Debug(ctx, "nothing buffered; skipping flush")
		return
	}

	started := time.Now()
	written, err := s.sink.Upsert(ctx, c.category, batch)
	duration := time.Since(started)
	s.metrics.ObserveDuration(c.category.String(), duration)
	s.metrics.ObserveBatchSize(c.category.String(), len(batch))

	if err != nil {
		s.queue.Requeue(c.category, batch)
		c.failures++
		s.metrics.IncFailure(c.category.String())
		s.metrics.SetConsecutiveFailures(c.category.String(), c.failures)

		failCtx := s.logg.WithFields(ctx, map[string]any{
			"batch_size":           len(batch),
			"consecutive_failures": c.failures,
			"duration_ms":          duration.Milliseconds(),
		})
		s.logg.Error(failCtx, "flush failed; batch requeued for next cycle", err)
		if c.failures == warnAfterConsecutiveFailures {
			s.logg.Warn(failCtx, "sustained flush failures for category")
		}
	} else {
		c.failures = 0
		s.metrics.IncSuccess(c.category.String())
		s.metrics.SetConsecutiveFailures(c.category.String(), 0)

		okCtx := s.logg.WithFields(ctx, map[string]any{
			"batch_size":  len(batch),
			"written":     written,
			"duration_ms": duration.Milliseconds(),
		})
		s.logg.Info(okCtx, "flush cycle complete")
	}

	s.metrics.SetBuffered(c.category.String(), s.queue.Size(c.category))
}

// finalFlush drains every category one last time under its own deadline.
func (s *Service) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	var errs error
	for _, c := range s.cycles {
		flushCtx := s.logg.WithCategory(ctx, c.category.String())
		batch := s.queue.Drain(c.category)
		if len(batch) == 0 {
			continue
		}
		if _, err := s.sink.Upsert(flushCtx, c.category, batch); err != nil {
			lostCtx := s.logg.WithField(flushCtx, "records_lost", len(batch))
			s.logg.Error(lostCtx, "shutdown flush failed; buffered records lost", err)
			errs = multierr.Append(errs, fmt.Errorf("shutdown flush %s: %w", c.category, err))
			continue
		}
		s.logg.Info(s.logg.WithField(flushCtx, "batch_size", len(batch)), "shutdown flush complete")
	}
	return errs
}
