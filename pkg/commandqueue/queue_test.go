package commandqueue

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

func TestConversationLane(t *testing.T) {
	assert.Equal(t, "conversation:abc", ConversationLane("abc"))
}

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	executed := false
	result, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expected := errors.New("task failed")
	result, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
		return nil, expected
	}, nil)

	assert.ErrorIs(t, err, expected)
	assert.Nil(t, result)
}

func TestCommandQueue_PanicBecomesError(t *testing.T) {
	cq := New()
	defer cq.Close()

	_, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
		panic("boom")
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// lane keeps working
	v, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) { return 1, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCommandQueue_SameLaneNeverOverlaps(t *testing.T) {
	cq := New()
	defer cq.Close()

	var running, maxRunning int32
	var wg sync.WaitGroup
	lane := ConversationLane("c-1")

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(lane, func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestCommandQueue_DifferentLanesRunConcurrently(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup

	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = cq.Enqueue(ConversationLane(id), func(ctx context.Context) (interface{}, error) {
				started <- struct{}{}
				<-release
				return nil, nil
			}, nil)
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("lanes did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestCommandQueue_Stats(t *testing.T) {
	cq := New()
	defer cq.Close()

	_, err := cq.Enqueue("stats", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	require.NoError(t, err)

	stats := cq.Stats()
	require.Contains(t, stats, "stats")
	assert.Equal(t, 1, stats["stats"].Concurrency)
}

func TestCommandQueue_ClearLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return cq.Stats()["test"].Queued == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, cq.ClearLane("test"))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, ErrLaneCleared)
	}
	close(release)
}

func TestCommandQueue_SetConcurrency(t *testing.T) {
	cq := New()
	defer cq.Close()

	cq.SetConcurrency("test", 3)
	assert.Equal(t, 3, cq.Stats()["test"].Concurrency)
}

func TestCommandQueue_WaitForActive(t *testing.T) {
	cq := New()
	defer cq.Close()

	go func() {
		_, _ = cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, nil
		}, nil)
	}()

	assert.True(t, cq.WaitForActive(time.Second))
}

func TestCommandQueue_CloseCancelsAndRejects(t *testing.T) {
	cq := New()

	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		_, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil)
		done <- err
	}()
	<-started

	require.NoError(t, cq.Close())
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := cq.Enqueue("test", func(ctx context.Context) (interface{}, error) { return nil, nil }, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCommandQueue_WarnAfter(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue("slow", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started

	waited := make(chan int, 1)
	go func() {
		_, _ = cq.Enqueue("slow", func(ctx context.Context) (interface{}, error) { return nil, nil }, &TaskOptions{
			WarnAfter: 10 * time.Millisecond,
			OnWait:    func(_ time.Duration, pos int) { waited <- pos },
		})
	}()

	select {
	case pos := <-waited:
		assert.Equal(t, 0, pos)
	case <-time.After(time.Second):
		t.Fatal("OnWait not called")
	}
	close(release)
}
