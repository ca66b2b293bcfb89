package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultAlarmRetry is the default Alarm.Retry.
const DefaultAlarmRetry = 250 * time.Millisecond

// Alarm is a one-shot timer which posts a message to a task when it
// expires. It never touches the task's state directly.
//
// Every Start and Stop advances the generation. The generation is passed to
// the message factory so the receiver can discard a message which was
// already queued when the alarm was stopped or restarted.
type Alarm struct {
	Target  Poster
	Message func(gen uint64) Message
	// Retry bounds the retries of an expiry which finds the target's
	// queue full. It applies when Target is a RetryPoster.
	Retry time.Duration

	name  string
	lock  sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewAlarm creates an Alarm.
func NewAlarm(name string, target Poster, msg func(gen uint64) Message) *Alarm {
	return &Alarm{name: name, Target: target, Message: msg, Retry: DefaultAlarmRetry}
}

// Name implements Named.
func (a *Alarm) Name() string {
	return a.name
}

// Start (re)arms the alarm to expire after d.
func (a *Alarm) Start(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidPeriod
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.stopLocked()
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(d, func() { a.fire(gen) })
	return nil
}

// Stop disarms the alarm. It is safe to call on a stopped alarm.
func (a *Alarm) Stop() {
	a.lock.Lock()
	a.stopLocked()
	a.gen++
	a.lock.Unlock()
}

// Active indicates the alarm is armed and has not expired yet.
func (a *Alarm) Active() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.timer != nil
}

// IsCurrent tells whether a message of generation gen is still relevant.
func (a *Alarm) IsCurrent(gen uint64) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return gen == a.gen
}

func (a *Alarm) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Alarm) fire(gen uint64) {
	a.lock.Lock()
	if gen != a.gen {
		a.lock.Unlock()
		return
	}
	a.timer = nil
	a.lock.Unlock()
	msg := a.Message(gen)
	var err error
	if rp, ok := a.Target.(RetryPoster); ok && a.Retry > 0 {
		err = rp.PostRetry(context.Background(), msg, a.Retry)
	} else {
		err = a.Target.Post(msg)
	}
	if err != nil {
		glog.Errorf("alarm %s: post failed: %v", a.name, err)
	}
}
