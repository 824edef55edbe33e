package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/events"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2, zap.NewNop())

	var running, peak int32
	for i := 0; i < 10; i++ {
		p.Go(context.Background(), "probe", func(context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
	}
	p.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPool_FailuresAreIsolated(t *testing.T) {
	p := NewPool(4, nil)

	var done int32
	p.Go(context.Background(), "fails", func(context.Context) error { return errors.New("boom") })
	p.Go(context.Background(), "panics", func(context.Context) error { panic("bad") })
	p.Go(context.Background(), "ok", func(context.Context) error {
		atomic.AddInt32(&done, 1)
		return nil
	})
	p.Wait()
	assert.Equal(t, int32(1), done)
}

func TestPool_OutlivesCallerContext(t *testing.T) {
	p := NewPool(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var ctxErr error
	p.Go(ctx, "late", func(taskCtx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		ctxErr = taskCtx.Err()
		return nil
	})
	cancel()
	p.Wait()
	assert.NoError(t, ctxErr)
}

func TestStartAuditWorker_SkipsNilSinks(t *testing.T) {
	d := events.NewInMemoryDispatcher(nil)
	var calls int32
	sink := func(context.Context, events.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	StartAuditWorker(d, zap.NewNop(), nil, sink)

	_ = d.Publish(context.Background(), events.NewEvent(events.EventTicketCreated, 1, 1, nil))
	_ = d.Publish(context.Background(), events.NewEvent(events.EventTicketCancelled, 1, 1, nil))
	assert.Equal(t, int32(2), calls)
}
