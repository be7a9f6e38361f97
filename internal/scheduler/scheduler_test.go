package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	const (
		limit = 2
		jobs  = 5
	)

	s := New(context.Background(), Options{Limit: limit})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		mu        sync.Mutex
		completed []string
	)

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		delay := time.Duration(5+rand.Intn(25)) * time.Millisecond
		s.Enqueue(Job{ID: id, Run: func(context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(delay)
			active.Add(-1)

			mu.Lock()
			completed = append(completed, id)
			mu.Unlock()
			return nil
		}})
	}

	require.NoError(t, s.Wait(waitCtx(t)))

	assert.LessOrEqual(t, int(maxActive.Load()), limit)
	assert.Len(t, completed, jobs)

	stats := s.Stats()
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, jobs, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
	assert.LessOrEqual(t, stats.Peak, limit)
	assert.GreaterOrEqual(t, stats.Peak, 1)
}

func TestSchedulerAdmitsInFIFOOrder(t *testing.T) {
	s := New(context.Background(), Options{Limit: 1})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	release := make(chan struct{})
	var (
		mu      sync.Mutex
		started []string
	)
	record := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		started = append(started, id)
	}

	s.Enqueue(Job{ID: "first", Run: func(context.Context) error {
		record("first")
		<-release
		return nil
	}})
	for _, id := range []string{"second", "third", "fourth"} {
		s.Enqueue(Job{ID: id, Run: func(context.Context) error {
			record(id)
			return nil
		}})
	}

	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.Active == 1 && st.Pending == 3
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, s.Wait(waitCtx(t)))

	assert.Equal(t, []string{"first", "second", "third", "fourth"}, started)
}

func TestSchedulerFailuresDoNotBlockOthers(t *testing.T) {
	core, observed := observer.New(zapcore.ErrorLevel)
	s := New(context.Background(), Options{Limit: 2, Logger: zap.New(core)})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var ran atomic.Int32

	s.Enqueue(Job{ID: "fails", PostingID: "p1", Run: func(context.Context) error {
		return errors.New("completion failed")
	}})
	s.Enqueue(Job{ID: "panics", PostingID: "p2", Run: func(context.Context) error {
		panic("boom")
	}})
	s.Enqueue(Job{ID: "no-run", PostingID: "p3"})
	for i := 0; i < 3; i++ {
		s.Enqueue(Job{Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	require.NoError(t, s.Wait(waitCtx(t)))

	assert.Equal(t, int32(3), ran.Load())

	stats := s.Stats()
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Pending)

	failures := observed.FilterMessage("job failed").All()
	require.Len(t, failures, 3)
	ids := map[any]bool{}
	for _, e := range failures {
		ids[e.ContextMap()["job_id"]] = true
	}
	assert.True(t, ids["fails"])
	assert.True(t, ids["panics"])
	assert.True(t, ids["no-run"])
}

func TestSchedulerJobsIgnoreParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, Options{Limit: 1})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	cancel()

	var jobErr atomic.Value
	s.Enqueue(Job{Run: func(ctx context.Context) error {
		jobErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	}})

	require.NoError(t, s.Wait(waitCtx(t)))
	assert.Equal(t, "<nil>", jobErr.Load())
}

func TestSchedulerWaitWhenIdle(t *testing.T) {
	s := New(context.Background(), Options{})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	assert.Equal(t, DefaultLimit, s.Limit())
	require.NoError(t, s.Wait(waitCtx(t)))
}

func TestSchedulerWaitHonoursContext(t *testing.T) {
	s := New(context.Background(), Options{Limit: 1})
	release := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		_ = s.Close(context.Background())
	})

	s.Enqueue(Job{Run: func(context.Context) error {
		<-release
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSchedulerCloseDrainsAndDrops(t *testing.T) {
	s := New(context.Background(), Options{Limit: 1})

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		s.Enqueue(Job{Run: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil
		}})
	}

	require.NoError(t, s.Close(waitCtx(t)))
	assert.Equal(t, int32(3), ran.Load())

	s.Enqueue(Job{Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	assert.Equal(t, int32(3), ran.Load())

	assert.Equal(t, Stats{Completed: 3, Peak: 1}, s.Stats())
	require.NoError(t, s.Wait(waitCtx(t)))
	require.NoError(t, s.Close(waitCtx(t)))
}

func TestSchedulerStatsSurviveClose(t *testing.T) {
	s := New(context.Background(), Options{Limit: 2})

	for i := 0; i < 3; i++ {
		s.Enqueue(Job{Run: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}})
	}
	s.Enqueue(Job{Run: func(context.Context) error {
		return errors.New("completion failed")
	}})

	require.NoError(t, s.Wait(waitCtx(t)))
	before := s.Stats()
	require.NoError(t, s.Close(waitCtx(t)))
	after := s.Stats()

	assert.Equal(t, before, after)
	assert.Equal(t, 3, after.Completed)
	assert.Equal(t, 1, after.Failed)
	assert.GreaterOrEqual(t, after.Peak, 1)
}

func TestSchedulerStopDropsPending(t *testing.T) {
	s := New(context.Background(), Options{Limit: 1})

	release := make(chan struct{})
	var ran atomic.Int32

	s.Enqueue(Job{ID: "running", Run: func(context.Context) error {
		<-release
		ran.Add(1)
		return nil
	}})
	for i := 0; i < 2; i++ {
		s.Enqueue(Job{Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Active == 1 && st.Pending == 2
	}, time.Second, 5*time.Millisecond)

	ctx := waitCtx(t)
	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(ctx) }()

	require.Eventually(t, func() bool {
		return s.Stats().Pending == 0
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before the running job finished: %v", err)
	default:
	}

	close(release)
	require.NoError(t, <-stopped)

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, Stats{Completed: 1, Peak: 1}, s.Stats())
}
