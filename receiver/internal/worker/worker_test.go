package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("job did not finish")
	}
}

func TestSingleWorkerRunsJobsInOrder(t *testing.T) {
	p := New(1, 16)
	defer p.Close()
	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))
	waitClosed(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1)
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrClosed)
}

func TestQueuedJobsRunAfterClose(t *testing.T) {
	p := New(1, 2)
	gate := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-gate }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))
	p.Close()
	close(gate)
	waitClosed(t, done)
}

func TestSubmitCanceledContext(t *testing.T) {
	p := New(1, 1)
	defer p.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Submit(ctx, func(context.Context) {}), context.Canceled)
}

func TestJobMayCloseItsPool(t *testing.T) {
	p := New(1, 2)
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		p.Close()
		close(done)
	}))
	waitClosed(t, done)
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrClosed)
}

func TestPanicIsRecovered(t *testing.T) {
	recovered := make(chan any, 1)
	p := New(1, 2, WithPanicHandler(func(r any) { recovered <- r }))
	defer p.Close()

	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(ran) }))

	assert.Equal(t, "boom", <-recovered)
	waitClosed(t, ran)
}
