package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testMsg struct {
	n int
}

func (m *testMsg) NewMessage() Message { return &testMsg{} }

func TestTaskPostQueueFull(t *testing.T) {
	task := NewTask("test", 2)
	require.NoError(t, task.Post(&testMsg{n: 1}))
	require.NoError(t, task.Post(&testMsg{n: 2}))
	require.Equal(t, ErrQueueFull, task.Post(&testMsg{n: 3}))
	require.Equal(t, 2, task.Len())

	var got []int
	task.Handler = HandleMessageFunc(func(ctx context.Context, msg Message) {
		got = append(got, msg.(*testMsg).n)
		require.Equal(t, task, TaskFrom(ctx))
	})
	require.Equal(t, 2, task.Drain(context.Background()))
	require.Equal(t, []int{1, 2}, got)
}

func TestTaskPostRetry(t *testing.T) {
	task := NewTask("test", 1)
	require.NoError(t, task.Post(&testMsg{n: 1}))

	err := task.PostRetry(context.Background(), &testMsg{n: 2}, 5*time.Millisecond)
	require.Equal(t, context.DeadlineExceeded, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		<-task.queue
	}()
	require.NoError(t, task.PostRetry(context.Background(), &testMsg{n: 3}, time.Second))
	require.Equal(t, 1, task.Len())
}

func TestTaskRunIdle(t *testing.T) {
	task := NewTask("test", 4)
	task.Timeout = 5 * time.Millisecond
	idleCh := make(chan struct{}, 1)
	msgCh := make(chan int, 1)
	task.Idle = IdleFunc(func(ctx context.Context) {
		select {
		case idleCh <- struct{}{}:
		default:
		}
	})
	task.Handler = HandleMessageFunc(func(ctx context.Context, msg Message) {
		msgCh <- msg.(*testMsg).n
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(ctx) }()

	require.NoError(t, task.Post(&testMsg{n: 7}))
	select {
	case n := <-msgCh:
		require.Equal(t, 7, n)
	case <-time.After(time.Second):
		t.Fatal("message not handled")
	}
	select {
	case <-idleCh:
	case <-time.After(time.Second):
		t.Fatal("idle not invoked")
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"))
	require.EqualError(t, errs.Aggregate(), "a")
	errs.Add(errors.New("b"))
	require.EqualError(t, errs.Aggregate(), "Multiple errors:\na\nb")
}

func TestRunner(t *testing.T) {
	r := NewRunner()
	r.Go(NamedRun("ok", RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})), NamedRun("fail", RunFunc(func(ctx context.Context) error {
		return errors.New("boom")
	})))
	require.EqualError(t, r.Wait(), "boom")
}
