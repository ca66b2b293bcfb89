package framework

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Task consumes messages from a bounded queue on a single goroutine.
// Everything a task owns is mutated only from its handler, so other
// goroutines communicate with it exclusively through Post.
type Task struct {
	// Timeout bounds every wait on the queue. When it expires without a
	// message, Idle is invoked. Zero waits forever.
	Timeout time.Duration
	Handler MessageHandler
	Idle    IdleHandler

	name  string
	queue chan Message
}

// DefaultQueueDepth is used when a task is created with a non-positive depth.
const DefaultQueueDepth = 16

// RetryInterval is the pause between attempts in PostRetry.
var RetryInterval = time.Millisecond

var taskCtxKey = &Task{}

// TaskFrom gets the Task running the current handler.
func TaskFrom(ctx context.Context) *Task {
	t, _ := ctx.Value(taskCtxKey).(*Task)
	return t
}

// NewTask creates a Task with a queue of the given depth.
func NewTask(name string, depth int) *Task {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Task{name: name, queue: make(chan Message, depth)}
}

// Name implements Named.
func (t *Task) Name() string {
	return t.name
}

// Len returns the number of queued messages.
func (t *Task) Len() int {
	return len(t.queue)
}

// Post implements Poster. It fails with ErrQueueFull instead of blocking.
func (t *Task) Post(msg Message) error {
	select {
	case t.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// PostRetry keeps trying to enqueue msg until it succeeds, ctx is done or
// timeout elapses. It is meant for messages which must not be dropped.
func (t *Task) PostRetry(ctx context.Context, msg Message, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := t.Post(msg)
		if err != ErrQueueFull {
			return err
		}
		if !time.Now().Before(deadline) {
			glog.Errorf("task %s: message %T dropped after %v", t.name, msg, timeout)
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryInterval):
		}
	}
}

// Run implements Runnable.
func (t *Task) Run(ctx context.Context) error {
	ctx = context.WithValue(ctx, taskCtxKey, t)
	glog.V(4).Infof("task %s started", t.name)
	defer glog.V(4).Infof("task %s stopped", t.name)

	var timer *time.Timer
	if t.Timeout > 0 {
		timer = time.NewTimer(t.Timeout)
		defer timer.Stop()
	}
	for {
		var expired <-chan time.Time
		if timer != nil {
			expired = timer.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-t.queue:
			if h := t.Handler; h != nil {
				h.HandleMessage(ctx, msg)
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(t.Timeout)
			}
		case <-expired:
			if h := t.Idle; h != nil {
				h.Idle(ctx)
			}
			timer.Reset(t.Timeout)
		}
	}
}

// Drain handles all queued messages synchronously on the caller's
// goroutine. It is used by tests and by single-threaded setups which pump
// the queue manually.
func (t *Task) Drain(ctx context.Context) int {
	ctx = context.WithValue(ctx, taskCtxKey, t)
	var n int
	for {
		select {
		case msg := <-t.queue:
			if h := t.Handler; h != nil {
				h.HandleMessage(ctx, msg)
			}
			n++
		default:
			return n
		}
	}
}
