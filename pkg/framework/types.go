package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message defines the abstract message delivered through
// a task queue.
type Message interface {
	// NewMessage creates an empty message.
	NewMessage() Message
}

// MessageHandler processes a message.
type MessageHandler interface {
	HandleMessage(context.Context, Message)
}

// HandleMessageFunc is the func form of MessageHandler.
type HandleMessageFunc func(context.Context, Message)

// HandleMessage implements MessageHandler.
func (f HandleMessageFunc) HandleMessage(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// IdleHandler is invoked when a task waited a full timeout
// period without receiving a message.
type IdleHandler interface {
	Idle(context.Context)
}

// IdleFunc is the func form of IdleHandler.
type IdleFunc func(context.Context)

// Idle implements IdleHandler.
func (f IdleFunc) Idle(ctx context.Context) {
	f(ctx)
}

// Poster enqueues messages for a task. It never blocks.
type Poster interface {
	Post(Message) error
}

// RetryPoster can keep retrying a post while its queue is full.
type RetryPoster interface {
	Poster
	PostRetry(ctx context.Context, msg Message, timeout time.Duration) error
}

// PostFunc is the func form of Poster.
type PostFunc func(Message) error

// Post implements Poster.
func (f PostFunc) Post(msg Message) error {
	return f(msg)
}
