package receiver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompletesOnce(t *testing.T) {
	f := newFuture()
	assert.False(t, f.IsComplete())
	assert.NoError(t, f.Err())

	first := errors.New("first")
	f.complete(first)
	f.complete(errors.New("second"))

	assert.True(t, f.IsComplete())
	assert.Equal(t, first, f.Err())
	assert.Equal(t, first, f.Await(context.Background()))
	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestFutureAwaitIsBounded(t *testing.T) {
	f := newFuture()
	assert.ErrorIs(t, f.AwaitWithTimeout(5*time.Millisecond), ErrAwaitTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Await(ctx), context.Canceled)
	assert.False(t, f.IsComplete())
}

func TestFutureManyWaiters(t *testing.T) {
	f := newFuture()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.AwaitWithTimeout(time.Second))
		}()
	}
	f.complete(nil)
	wg.Wait()
}

func TestOperationSubmitsOnce(t *testing.T) {
	var (
		op    operation
		mu    sync.Mutex
		calls atomic.Int32
		wg    sync.WaitGroup
	)
	results := make([]*Future, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = op.submit(&mu, func() *Future {
				calls.Add(1)
				return newFuture()
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, f := range results {
		assert.Same(t, results[0], f)
	}
}

func TestScheduledPanicFailsFuture(t *testing.T) {
	r := newTestReceiver(t, &fakeTransport{})
	f := r.schedule("probe", func(context.Context) error { panic("boom") }, func() error { return nil })
	err := f.AwaitWithTimeout(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalState)
	assert.Contains(t, err.Error(), "boom")
}
