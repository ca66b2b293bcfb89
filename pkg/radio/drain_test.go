package radio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/downlink.go/pkg/buffer"
	"github.com/robotalks/downlink.go/pkg/framework"
)

type fakeFIFO struct {
	depth    int
	words    []uint32
	sent     []uint32
	armed    []IRQ
	writeErr error
}

func (f *fakeFIFO) FIFOFree() int {
	return f.depth - len(f.words)
}

func (f *fakeFIFO) WriteFIFO(words []uint32) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.words = append(f.words, words...)
	return nil
}

func (f *fakeFIFO) ArmInterrupt(irq IRQ) error {
	f.armed = append(f.armed, irq)
	return nil
}

func (f *fakeFIFO) shiftAll() {
	f.sent = append(f.sent, f.words...)
	f.words = nil
}

func (f *fakeFIFO) lastArmed() IRQ {
	irq := f.armed[len(f.armed)-1]
	f.armed = f.armed[:len(f.armed)-1]
	return irq
}

type drainHarness struct {
	fifo      *fakeFIFO
	buffers   *buffer.Manager
	drain     *Drain
	posted    []framework.Message
	completed int
}

func newDrainHarness(depth int) *drainHarness {
	h := &drainHarness{fifo: &fakeFIFO{depth: depth}}
	h.buffers = buffer.NewManager(nil, nil)
	h.drain = &Drain{
		Buffers: h.buffers,
		FIFO:    h.fifo,
		Notifier: FrameCompleteFunc(func() error {
			h.completed++
			return nil
		}),
		Queue: framework.PostFunc(func(msg framework.Message) error {
			h.posted = append(h.posted, msg)
			return nil
		}),
	}
	return h
}

func (h *drainHarness) fill(t *testing.T, words int, base uint32, last bool) {
	hd := h.buffers.AcquireForFill()
	require.NotNil(t, hd)
	for n := 0; n < words; n++ {
		hd.Buf[n] = base + uint32(n)
	}
	h.buffers.ReleaseFilled(hd, words*3, last)
}

func (h *drainHarness) irq(irq IRQ) {
	h.drain.HandleMessage(context.Background(), &IRQMsg{IRQ: irq})
}

func pattern(base uint32, n int) []uint32 {
	words := make([]uint32, n)
	for i := range words {
		words[i] = base + uint32(i)
	}
	return words
}

func TestDrainSequence(t *testing.T) {
	h := newDrainHarness(8)
	h.fill(t, 10, 100, false)
	h.fill(t, 10, 200, true)

	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Len(t, h.fifo.words, 8)
	require.Equal(t, FIFOLow, h.fifo.lastArmed())

	h.fifo.shiftAll()
	h.irq(FIFOLow)
	require.Equal(t, append(pattern(108, 2), pattern(200, 6)...), h.fifo.words)
	require.Equal(t, FIFOLow, h.fifo.lastArmed())

	h.fifo.shiftAll()
	h.irq(FIFOLow)
	require.Equal(t, pattern(206, 4), h.fifo.words)
	require.Equal(t, FIFOEmpty, h.fifo.lastArmed(), "end of sequence waits for the FIFO to empty")
	require.Zero(t, h.completed)

	h.fifo.shiftAll()
	h.irq(FIFOEmpty)
	require.Equal(t, 1, h.completed)
	require.Empty(t, h.fifo.armed)
	require.Equal(t, append(pattern(100, 10), pattern(200, 10)...), h.fifo.sent)
	require.EqualValues(t, 20, h.drain.Words())

	h.irq(FIFOEmpty)
	require.Equal(t, 1, h.completed, "completion is reported once")
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Stale, buffer.Stale}, h.buffers.States())
}

func TestDrainIdleUntilReady(t *testing.T) {
	h := newDrainHarness(64)
	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Empty(t, h.fifo.armed)
	require.Empty(t, h.fifo.words)

	h.fill(t, 5, 1, false)
	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Equal(t, pattern(1, 5), h.fifo.words)
	require.Empty(t, h.fifo.armed, "nothing to wait for without a last frame")
	require.Zero(t, h.completed)
}

func TestDrainWriteError(t *testing.T) {
	h := newDrainHarness(64)
	h.fill(t, 5, 1, false)
	h.fifo.writeErr = errors.New("bus error")
	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Empty(t, h.fifo.words)
	require.Equal(t, FIFOLow, h.fifo.lastArmed())

	h.fifo.writeErr = nil
	h.irq(FIFOLow)
	require.Equal(t, pattern(1, 5), h.fifo.words)
}

func TestDrainAbandonsStoppedBuffer(t *testing.T) {
	h := newDrainHarness(8)
	h.fill(t, 20, 100, false)
	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Equal(t, pattern(100, 8), h.fifo.words)
	require.Equal(t, FIFOLow, h.fifo.lastArmed())

	h.buffers.StopTelemetryProcessing()
	h.fifo.words = nil
	h.irq(FIFOLow)
	require.Empty(t, h.fifo.words, "rest of a stopped frame is not written")
	require.Empty(t, h.fifo.armed)
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Stale, buffer.Stale}, h.buffers.States())
	require.EqualValues(t, 8, h.drain.Words())

	h.buffers.InitRestart()
	h.fill(t, 2, 500, true)
	h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
	require.Equal(t, pattern(500, 2), h.fifo.words)
	require.Equal(t, FIFOEmpty, h.fifo.lastArmed())
	h.fifo.shiftAll()
	h.irq(FIFOEmpty)
	require.Equal(t, 1, h.completed)
}

func TestDrainDropsSupersededCompletion(t *testing.T) {
	testCases := []struct {
		name string
		end  func(*buffer.Manager)
	}{
		{"stop", (*buffer.Manager).StopTelemetryProcessing},
		{"restart", (*buffer.Manager).InitRestart},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newDrainHarness(8)
			h.fill(t, 4, 1, true)
			h.drain.HandleMessage(context.Background(), &BufferReadyMsg{})
			require.Equal(t, FIFOEmpty, h.fifo.lastArmed())

			tc.end(h.buffers)
			h.fifo.shiftAll()
			h.irq(FIFOEmpty)
			require.Zero(t, h.completed)
		})
	}
}

func TestDrainPosts(t *testing.T) {
	h := newDrainHarness(8)
	h.drain.BufferReady()
	h.drain.Interrupt(FIFOEmpty)
	require.Equal(t, []framework.Message{&BufferReadyMsg{}, &IRQMsg{IRQ: FIFOEmpty}}, h.posted)

	h.drain.Queue = framework.PostFunc(func(framework.Message) error { return framework.ErrQueueFull })
	h.drain.BufferReady()
	h.drain.Interrupt(FIFOLow)
}

func TestIRQString(t *testing.T) {
	require.Equal(t, "fifo-low", FIFOLow.String())
	require.Equal(t, "fifo-empty", FIFOEmpty.String())
	require.Equal(t, "IRQ(7)", IRQ(7).String())
}
