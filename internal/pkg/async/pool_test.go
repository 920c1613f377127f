package async

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecutesAllTasks(t *testing.T) {
	var ran int32
	tasks := make([]Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", i),
			Execute: func(ctx context.Context) (any, error) {
				atomic.AddInt32(&ran, 1)
				return i * 2, nil
			},
		}
	}

	results := NewPool(3).Execute(context.Background(), tasks)

	require.Len(t, results, 10)
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
	assert.Equal(t, 8, results["task-4"].Data)
	assert.NoError(t, results["task-4"].Err)
}

func TestPoolReportsTaskErrors(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		{Name: "ok", Execute: func(ctx context.Context) (any, error) { return "fine", nil }},
		{Name: "bad", Execute: func(ctx context.Context) (any, error) { return nil, boom }},
	}

	results := NewPool(2).Execute(context.Background(), tasks)

	require.Len(t, results, 2)
	assert.NoError(t, results["ok"].Err)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	tasks := []Task{
		{Name: "first", Execute: func(ctx context.Context) (any, error) {
			cancel()
			return nil, nil
		}},
		{Name: "second", Execute: func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	}

	done := make(chan map[string]Result, 1)
	go func() { done <- NewPool(1).Execute(ctx, tasks) }()

	select {
	case results := <-done:
		assert.LessOrEqual(t, len(results), 2)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
