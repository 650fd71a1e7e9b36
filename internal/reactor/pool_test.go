package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerPoolSubmitReturnsResult(t *testing.T) {
	wp := NewWorkerPool(2, 4)
	defer wp.Close()

	v, err := wp.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestWorkerPoolSubmitPropagatesError(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	defer wp.Close()

	wantErr := errors.New("boom")
	v, err := wp.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	require.Nil(t, v)
	require.Equal(t, wantErr, err)
}

func TestWorkerPoolConcurrentSubmits(t *testing.T) {
	wp := NewWorkerPool(4, 16)
	defer wp.Close()

	var counter int64
	const n = 50
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := wp.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
				atomic.AddInt64(&counter, 1)
				return nil, nil
			})
			errCh <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}
	require.Equal(t, int64(n), atomic.LoadInt64(&counter))
}

func TestWorkerPoolSubmitRespectsContextCancellation(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	defer wp.Close()

	// Occupy the single worker so a second submission has to wait in queue.
	started := make(chan struct{})
	release := make(chan struct{})
	go wp.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := wp.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPoolRunWrapsError(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	_, err := p.Run(context.Background(), "testtask", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("inner failure")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "testtask")
	require.Contains(t, err.Error(), "inner failure")
}

func TestPoolContextRoundTrip(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	ctx := WithPool(context.Background(), p)
	require.Same(t, p, FromContext(ctx))
}

func TestFromContextWithoutPoolReturnsNil(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
}
