// Package scheduler runs background jobs with admission control: jobs are
// admitted in FIFO order and at most Limit of them run at the same time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/job-preprocessor/internal/logger"
)

const DefaultLimit = 2

// Job is one unit of background work. Run is never cancelled once admitted.
type Job struct {
	ID        string
	PostingID string
	Name      string
	Run       func(ctx context.Context) error
}

// Stats is a point in time snapshot of the scheduler state.
type Stats struct {
	Pending   int
	Active    int
	Completed int
	Failed    int
	// Peak is the highest number of jobs observed running at once.
	Peak int
}

type Options struct {
	Limit  int
	Logger *zap.Logger
}

type result struct {
	job      Job
	err      error
	duration time.Duration
}

// Scheduler owns the pending queue and the active count. Both are only touched
// by the coordinator goroutine started in New.
type Scheduler struct {
	limit  int
	logger *zap.Logger
	ctx    context.Context
	group  *errgroup.Group

	enqueue  chan Job
	finished chan result
	stats    chan chan Stats
	idle     chan chan struct{}
	quit     chan struct{}
	halt     chan struct{}
	stopped  chan struct{}

	// final is written by the coordinator before stopped is closed.
	final Stats

	closeOnce sync.Once
	haltOnce  sync.Once
}

// New starts the coordinator. Jobs inherit values from ctx but not its
// cancellation.
func New(ctx context.Context, opts Options) *Scheduler {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	group := &errgroup.Group{}
	group.SetLimit(limit)

	s := &Scheduler{
		limit:    limit,
		logger:   log.With(zap.String("component", "scheduler")),
		ctx:      context.WithoutCancel(ctx),
		group:    group,
		enqueue:  make(chan Job),
		finished: make(chan result),
		stats:    make(chan chan Stats),
		idle:     make(chan chan struct{}),
		quit:     make(chan struct{}),
		halt:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go s.loop()

	return s
}

// Limit returns the maximum number of concurrently running jobs.
func (s *Scheduler) Limit() int { return s.limit }

// Enqueue queues job for execution and returns immediately. Jobs enqueued after
// Close are dropped.
func (s *Scheduler) Enqueue(job Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	select {
	case s.enqueue <- job:
	case <-s.stopped:
		s.logger.Warn("scheduler is closed, dropping job",
			zap.String(logger.FieldJobID, job.ID),
			zap.String(logger.FieldPostingID, job.PostingID),
		)
	}
}

// Stats returns a snapshot of the queue and counters. Once the scheduler has
// stopped it returns the final counters.
func (s *Scheduler) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case s.stats <- reply:
		return <-reply
	case <-s.stopped:
		return s.final
	}
}

// Wait blocks until no job is pending or running, or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.idle <- done:
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for every admitted and pending job to
// finish, or for ctx to be done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.quit) })

	select {
	case <-s.stopped:
	case <-ctx.Done():
		return fmt.Errorf("close scheduler: %w", ctx.Err())
	}

	return s.group.Wait()
}

// Stop is Close without draining: pending jobs are dropped and only the
// running ones are waited for.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.haltOnce.Do(func() { close(s.halt) })
	return s.Close(ctx)
}

func (s *Scheduler) loop() {
	defer close(s.stopped)

	var (
		pending []Job
		waiters []chan struct{}
		stats   Stats
		closing bool
	)
	quit, halt := s.quit, s.halt

	dispatch := func() {
		for stats.Active < s.limit && len(pending) > 0 {
			job := pending[0]
			pending[0] = Job{}
			pending = pending[1:]
			stats.Active++
			if stats.Active > stats.Peak {
				stats.Peak = stats.Active
			}
			s.start(job)
		}
	}

	for {
		if stats.Active == 0 && len(pending) == 0 {
			for _, w := range waiters {
				close(w)
			}
			waiters = nil
			if closing {
				s.final = stats
				return
			}
		}

		select {
		case job := <-s.enqueue:
			if closing {
				s.logger.Warn("scheduler is closing, dropping job", zap.String(logger.FieldJobID, job.ID))
				continue
			}
			pending = append(pending, job)
			s.logger.Debug("job queued",
				zap.String(logger.FieldJobID, job.ID),
				zap.String(logger.FieldPostingID, job.PostingID),
				zap.Int("pending", len(pending)),
				zap.Int("active", stats.Active),
			)
			dispatch()

		case res := <-s.finished:
			stats.Active--
			if res.err != nil {
				stats.Failed++
			} else {
				stats.Completed++
			}
			dispatch()

		case reply := <-s.stats:
			snapshot := stats
			snapshot.Pending = len(pending)
			reply <- snapshot

		case w := <-s.idle:
			waiters = append(waiters, w)

		case <-quit:
			closing = true
			quit = nil

		case <-halt:
			if len(pending) > 0 {
				s.logger.Warn("scheduler is stopping, dropping pending jobs", zap.Int("pending", len(pending)))
			}
			pending = nil
			closing = true
			halt = nil
		}
	}
}

func (s *Scheduler) start(job Job) {
	log := logger.WithJobFields(s.logger, job.ID, job.PostingID)
	log.Debug("job admitted", zap.String("name", job.Name))

	s.group.Go(func() error {
		started := time.Now()
		res := result{job: job}

		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("job panicked: %v", r)
			}
			res.duration = time.Since(started)

			if res.err != nil {
				log.Error("job failed", zap.Duration("duration", res.duration), zap.Error(res.err))
			} else {
				log.Info("job finished", zap.Duration("duration", res.duration))
			}

			s.finished <- res
		}()

		if job.Run == nil {
			res.err = errors.New("job has no run function")
			return nil
		}
		res.err = job.Run(s.ctx)

		// Job errors are reported through the log and counters only.
		return nil
	})
}
