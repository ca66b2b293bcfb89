// Package link carries commands from the ground to the spacecraft and
// status events back, over any packet transport.
package link

import (
	"context"

	fx "github.com/robotalks/downlink.go/pkg/framework"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Command represents a received command to be processed.
type Command interface {
	Msg() fx.Message
	Done(fx.Message) error
}

// NodeRef is a reference to a node on the link.
type NodeRef struct {
	// Type is the node type, e.g. "downlink".
	Type string
	// ID is unique ID of the node.
	ID string
}

// Name retrieves the name from ref.
func (r NodeRef) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates NodeRef is valid.
func (r NodeRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// NodeMeta provides metadata of a node.
type NodeMeta struct {
	Description string            `json:"description,omitempty"`
	Session     string            `json:"session,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// NodeInfo provides information of a node.
type NodeInfo struct {
	Ref  NodeRef
	Meta NodeMeta
}

// Connector is used on the ground to reach a spacecraft node.
type Connector interface {
	// Discover enumerates registered nodes.
	Discover(context.Context) ([]NodeInfo, error)
	// Connect connects to the specified node.
	Connect(context.Context, NodeRef) (Conn, error)
}

// Conn is the ground side connection to a node.
type Conn interface {
	fx.Runnable
	// DoCommand executes a command.
	DoCommand(fx.Message) CommandFuture
	// OnEvent sets the receiver of events.
	OnEvent(EventHandler)
}

// EventHandler receives events from a node.
type EventHandler func(fx.Message)

// Result represents result of a command.
type Result struct {
	Msg fx.Message
	Err error
}

// CommandFuture is the future of sent command.
type CommandFuture interface {
	ResultChan() <-chan Result
}

// Wait blocks until f completes or ctx is done.
func Wait(ctx context.Context, f CommandFuture) Result {
	select {
	case r, ok := <-f.ResultChan():
		if !ok {
			return Result{Err: context.Canceled}
		}
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}
