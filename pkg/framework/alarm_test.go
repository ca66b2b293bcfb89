package framework

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type alarmMsg struct {
	gen uint64
}

func (m *alarmMsg) NewMessage() Message { return &alarmMsg{} }

func newTestAlarm(task *Task) *Alarm {
	return NewAlarm("test", task, func(gen uint64) Message { return &alarmMsg{gen: gen} })
}

func waitQueued(t *testing.T, task *Task, n int) {
	deadline := time.Now().Add(time.Second)
	for task.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expect %d queued messages, got %d", n, task.Len())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAlarmFires(t *testing.T) {
	task := NewTask("test", 4)
	a := newTestAlarm(task)
	require.Equal(t, ErrInvalidPeriod, a.Start(0))
	require.False(t, a.Active())

	require.NoError(t, a.Start(time.Millisecond))
	require.True(t, a.Active())
	waitQueued(t, task, 1)
	require.False(t, a.Active())

	var msg *alarmMsg
	task.Handler = HandleMessageFunc(func(ctx context.Context, m Message) {
		msg = m.(*alarmMsg)
	})
	task.Drain(context.Background())
	require.NotNil(t, msg)
	require.True(t, a.IsCurrent(msg.gen))
}

func TestAlarmStaleAfterStop(t *testing.T) {
	task := NewTask("test", 4)
	a := newTestAlarm(task)
	require.NoError(t, a.Start(time.Millisecond))
	waitQueued(t, task, 1)
	a.Stop()
	a.Stop()

	var msg *alarmMsg
	task.Handler = HandleMessageFunc(func(ctx context.Context, m Message) {
		msg = m.(*alarmMsg)
	})
	task.Drain(context.Background())
	require.NotNil(t, msg)
	require.False(t, a.IsCurrent(msg.gen))
}

func TestAlarmStopBeforeExpiry(t *testing.T) {
	task := NewTask("test", 4)
	a := newTestAlarm(task)
	require.NoError(t, a.Start(20*time.Millisecond))
	a.Stop()
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 0, task.Len())
}

func TestAlarmRetriesFullQueue(t *testing.T) {
	task := NewTask("test", 1)
	require.NoError(t, task.Post(&alarmMsg{}))
	a := newTestAlarm(task)
	a.Retry = time.Second
	require.NoError(t, a.Start(time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var msgs []*alarmMsg
	task.Handler = HandleMessageFunc(func(ctx context.Context, m Message) {
		msgs = append(msgs, m.(*alarmMsg))
	})
	deadline := time.Now().Add(time.Second)
	for len(msgs) < 2 {
		require.True(t, time.Now().Before(deadline), "alarm expiry lost")
		task.Drain(context.Background())
		time.Sleep(time.Millisecond)
	}
	require.Len(t, msgs, 2)
	require.True(t, a.IsCurrent(msgs[1].gen), "expiry delivered once the queue has room")
}

func TestAlarmWithoutRetryDropsOnFullQueue(t *testing.T) {
	posts := make(chan Message, 4)
	target := PostFunc(func(m Message) error {
		posts <- m
		return ErrQueueFull
	})
	a := NewAlarm("test", target, func(gen uint64) Message { return &alarmMsg{gen: gen} })
	require.NoError(t, a.Start(time.Millisecond))
	select {
	case <-posts:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
	time.Sleep(20 * time.Millisecond)
	require.Len(t, posts, 0, "plain posters are tried once")
}
