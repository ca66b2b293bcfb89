// Package radio moves encoded symbols from the frame buffers into the
// transmitter FIFO.
package radio

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/buffer"
	"github.com/robotalks/downlink.go/pkg/framework"
)

// IRQ is a transmitter interrupt.
type IRQ int

// Interrupts.
const (
	// FIFOLow fires when the FIFO drained below its low-water mark.
	FIFOLow IRQ = iota
	// FIFOEmpty fires when the last word left the FIFO.
	FIFOEmpty
)

// String implements fmt.Stringer.
func (i IRQ) String() string {
	switch i {
	case FIFOLow:
		return "fifo-low"
	case FIFOEmpty:
		return "fifo-empty"
	}
	return fmt.Sprintf("IRQ(%d)", int(i))
}

// IRQMsg is posted to the drain task when an armed interrupt fires.
type IRQMsg struct {
	IRQ IRQ
}

// NewMessage implements framework.Message.
func (m *IRQMsg) NewMessage() framework.Message { return &IRQMsg{} }

// BufferReadyMsg wakes up the drain when a buffer becomes Ready.
type BufferReadyMsg struct{}

// NewMessage implements framework.Message.
func (m *BufferReadyMsg) NewMessage() framework.Message { return &BufferReadyMsg{} }

// FIFO is the transmit side of the radio hardware.
type FIFO interface {
	// FIFOFree returns the number of words which can be written.
	FIFOFree() int
	// WriteFIFO appends words to the FIFO.
	WriteFIFO(words []uint32) error
	// ArmInterrupt enables irq once; it is disarmed when it fires.
	ArmInterrupt(irq IRQ) error
}

// DrainBuffers is the part of the buffer manager the drain uses.
type DrainBuffers interface {
	AcquireForDrain() (buffer.DrainResult, bool)
	Transmit(res buffer.DrainResult, write func() error) (bool, error)
	SequenceCurrent(res buffer.DrainResult) bool
}

// CompletionNotifier is told when the final word of a sequence left the
// transmitter.
type CompletionNotifier interface {
	FrameComplete() error
}

// FrameCompleteFunc is the func form of CompletionNotifier.
type FrameCompleteFunc func() error

// FrameComplete implements CompletionNotifier.
func (f FrameCompleteFunc) FrameComplete() error {
	return f()
}

// Drain copies Ready buffers into the FIFO in chunks, driven by FIFO
// interrupts. It runs as the handler of its own task.
type Drain struct {
	words uint64

	Buffers  DrainBuffers
	FIFO     FIFO
	Notifier CompletionNotifier
	Queue    framework.Poster

	cur     *buffer.DrainResult
	pos     int
	waiting bool
	end     buffer.DrainResult
}

// BufferReady implements buffer.DrainNotifier.
func (d *Drain) BufferReady() {
	if err := d.Queue.Post(&BufferReadyMsg{}); err != nil {
		glog.V(2).Infof("drain: wake-up dropped: %v", err)
	}
}

// Interrupt posts irq to the drain task. It is safe to call from any
// goroutine.
func (d *Drain) Interrupt(irq IRQ) {
	if err := d.Queue.Post(&IRQMsg{IRQ: irq}); err != nil {
		glog.Errorf("drain: %v dropped: %v", irq, err)
	}
}

// Words returns the number of words written to the FIFO.
func (d *Drain) Words() uint64 {
	return atomic.LoadUint64(&d.words)
}

// HandleMessage implements framework.MessageHandler.
func (d *Drain) HandleMessage(ctx context.Context, msg framework.Message) {
	switch msg := msg.(type) {
	case *IRQMsg:
		if msg.IRQ == FIFOEmpty && d.waiting {
			d.waiting = false
			d.complete()
		}
		d.pump()
	case *BufferReadyMsg:
		d.pump()
	default:
		glog.Warningf("drain: unexpected message %T", msg)
	}
}

// complete reports the end of a sequence unless the sequence was stopped
// or restarted while its tail was in the FIFO.
func (d *Drain) complete() {
	if !d.Buffers.SequenceCurrent(d.end) {
		glog.V(2).Info("drain: sequence superseded, completion dropped")
		return
	}
	glog.V(2).Info("drain: sequence transmitted")
	if err := d.Notifier.FrameComplete(); err != nil {
		glog.Errorf("drain: frame complete: %v", err)
	}
}

func (d *Drain) pump() {
	for !d.waiting {
		if d.cur == nil {
			res, ok := d.Buffers.AcquireForDrain()
			if !ok {
				if res.IsLast {
					d.waiting, d.end = true, res
					d.arm(FIFOEmpty)
				}
				return
			}
			d.cur, d.pos = &res, 0
		}
		n := d.cur.Words - d.pos
		if free := d.FIFO.FIFOFree(); n > free {
			n = free
		}
		if n > 0 {
			words := d.cur.Buf[d.pos : d.pos+n]
			ok, err := d.Buffers.Transmit(*d.cur, func() error {
				return d.FIFO.WriteFIFO(words)
			})
			if err != nil {
				glog.Errorf("drain: write FIFO: %v", err)
				d.arm(FIFOLow)
				return
			}
			if !ok {
				// Stopped mid-frame: the rest of it is never sent.
				glog.V(2).Infof("drain: buffer %d abandoned at word %d", d.cur.Index, d.pos)
				d.cur = nil
				continue
			}
			d.pos += n
			atomic.AddUint64(&d.words, uint64(n))
		}
		if d.pos < d.cur.Words {
			d.arm(FIFOLow)
			return
		}
		d.cur = nil
	}
}

func (d *Drain) arm(irq IRQ) {
	if err := d.FIFO.ArmInterrupt(irq); err != nil {
		glog.Errorf("drain: arm %v: %v", irq, err)
	}
}
