package downlink

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/buffer"
	"github.com/robotalks/downlink.go/pkg/codec"
	"github.com/robotalks/downlink.go/pkg/frame"
	"github.com/robotalks/downlink.go/pkg/framework"
)

// FillRequestMsg asks the Producer to fill one buffer.
type FillRequestMsg struct{}

// NewMessage implements framework.Message.
func (m *FillRequestMsg) NewMessage() framework.Message { return &FillRequestMsg{} }

// FillBuffers is the part of the buffer manager the Producer uses.
type FillBuffers interface {
	AcquireForFill() *buffer.Handle
	ReleaseFilled(h *buffer.Handle, length int, last bool)
	InitRestart()
}

// Sequencer switches the frame sequence being produced.
type Sequencer interface {
	Restart(*frame.Sequence)
}

// Producer fills buffers with encoded frames on request. It runs as the
// handler of its own task.
type Producer struct {
	Buffers   FillBuffers
	Assembler *frame.Assembler
	Encoder   *codec.Encoder
	Queue     framework.Poster
	Mode      func() Mode

	lock sync.Mutex
	seq  *frame.Sequence
}

// NewProducer creates a Producer.
func NewProducer(buffers FillBuffers, src frame.TelemetrySource) *Producer {
	return &Producer{
		Buffers:   buffers,
		Assembler: frame.NewAssembler(src),
		Encoder:   codec.NewEncoder(),
	}
}

// RequestFill implements buffer.FillRequester.
func (p *Producer) RequestFill() error {
	return p.Queue.Post(&FillRequestMsg{})
}

// Restart begins a new sequence. Buffers being filled for the previous
// sequence are discarded.
func (p *Producer) Restart(seq *frame.Sequence) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.Buffers.InitRestart()
	p.seq = seq
	glog.V(2).Infof("producer: sequence %s", seq.Name)
}

// HandleMessage implements framework.MessageHandler.
func (p *Producer) HandleMessage(ctx context.Context, msg framework.Message) {
	switch msg.(type) {
	case *FillRequestMsg:
		p.fill()
	default:
		glog.Warningf("producer: unexpected message %T", msg)
	}
}

func (p *Producer) fill() {
	p.lock.Lock()
	h := p.Buffers.AcquireForFill()
	if h == nil {
		p.lock.Unlock()
		return
	}
	var (
		ft       frame.Type
		last, ok bool
	)
	if p.seq != nil {
		ft, last, ok = p.seq.Next()
	}
	p.lock.Unlock()
	if !ok {
		p.Buffers.ReleaseFilled(h, 0, false)
		return
	}

	var mode Mode
	if p.Mode != nil {
		mode = p.Mode()
	}
	data, err := p.Assembler.Build(ft, uint8(mode))
	var n int
	if err == nil {
		n, err = p.Encoder.EncodeFrame(h.Buf, data, last)
	}
	if err != nil {
		glog.Errorf("producer: frame %v: %v", ft, err)
		p.Buffers.ReleaseFilled(h, 0, false)
		return
	}
	glog.V(3).Infof("producer: frame %v into buffer %d, %d symbols, last=%v", ft, h.Index(), n, last)
	p.Buffers.ReleaseFilled(h, n, last)
}
