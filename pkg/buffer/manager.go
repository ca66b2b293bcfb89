// Package buffer hands symbol buffers back and forth between the frame
// producer and the radio drain.
//
// There are exactly two buffers. Each moves through
//
//	Stale -> Filling -> Ready -> Emptying -> Stale
//
// The producer owns a buffer while it is Filling, the drain owns it while it
// is Emptying, and a buffer is only handed over by the Manager.
package buffer

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/codec"
	"github.com/robotalks/downlink.go/pkg/frame"
	"github.com/robotalks/downlink.go/pkg/symbol"
)

// Slots is the number of symbol buffers.
const Slots = 2

// SlotSymbols is the capacity of each buffer in symbols.
var SlotSymbols = codec.SymbolsFor(frame.DataLen, true, true)

// State is the ownership state of a buffer.
type State int

// Buffer states.
const (
	Stale State = iota
	Filling
	Ready
	Emptying
)

var stateNames = [...]string{"Stale", "Filling", "Ready", "Emptying"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FillRequester asks the producer to fill a buffer. It must not block.
type FillRequester interface {
	RequestFill() error
}

// FillRequestFunc is the func form of FillRequester.
type FillRequestFunc func() error

// RequestFill implements FillRequester.
func (f FillRequestFunc) RequestFill() error {
	return f()
}

// DrainNotifier is told when a buffer becomes Ready. It must not block.
type DrainNotifier interface {
	BufferReady()
}

// BufferReadyFunc is the func form of DrainNotifier.
type BufferReadyFunc func()

// BufferReady implements DrainNotifier.
func (f BufferReadyFunc) BufferReady() {
	f()
}

// Handle is a buffer lent to the producer.
type Handle struct {
	Buf symbol.Buffer

	index int
	epoch uint64
}

// Index returns the slot index.
func (h *Handle) Index() int {
	return h.index
}

// DrainResult describes a buffer lent to the drain. When no buffer is
// lent, IsLast reports the end of the sequence.
type DrainResult struct {
	Index   int
	Buf     symbol.Buffer
	Symbols int
	Words   int
	IsLast  bool

	gen   uint64
	epoch uint64
}

// Stats counts buffer traffic.
type Stats struct {
	Filled         uint64
	Drained        uint64
	Discarded      uint64
	FillRequests   uint64
	RequestsFailed uint64
	FillRefused    uint64
}

type slot struct {
	state  State
	buf    symbol.Buffer
	length int
	last   bool
	seq    uint64
}

// Manager arbitrates the two buffers.
type Manager struct {
	Requester FillRequester
	Notifier  DrainNotifier

	lock          sync.Mutex
	slots         [Slots]slot
	draining      int
	fillRequested bool
	stopped       bool
	ending        bool
	endPending    bool
	epoch         uint64
	seq           uint64
	stats         Stats

	// drainGen advances when StopTelemetryProcessing abandons the buffer
	// being drained; drainingGen is the generation it was lent at.
	drainGen    uint64
	drainingGen uint64
}

// NewManager creates a Manager with two Stale buffers.
func NewManager(req FillRequester, notifier DrainNotifier) *Manager {
	m := &Manager{Requester: req, Notifier: notifier, draining: -1}
	for n := range m.slots {
		m.slots[n].buf = symbol.New(SlotSymbols)
	}
	return m
}

// AcquireForFill lends a Stale buffer to the producer. It returns nil when
// no buffer is Stale, a fill is already in progress or the sequence is
// stopped.
func (m *Manager) AcquireForFill() *Handle {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.fillRequested = false
	if m.stopped || m.ending || m.fillingLocked() >= 0 {
		m.stats.FillRefused++
		return nil
	}
	for n := range m.slots {
		if m.slots[n].state == Stale {
			m.slots[n].state = Filling
			return &Handle{Buf: m.slots[n].buf, index: n, epoch: m.epoch}
		}
	}
	m.stats.FillRefused++
	return nil
}

// ReleaseFilled returns a buffer holding length symbols. last marks the
// final frame of the sequence. A buffer released after
// StopTelemetryProcessing or InitRestart is discarded. A release with no
// symbols declines the fill and does not trigger another request.
func (m *Manager) ReleaseFilled(h *Handle, length int, last bool) {
	m.lock.Lock()
	s := &m.slots[h.index]
	if s.state != Filling {
		m.lock.Unlock()
		glog.Errorf("buffer %d released in state %v", h.index, s.state)
		return
	}
	if length <= 0 {
		s.state = Stale
		m.lock.Unlock()
		return
	}
	if m.stopped || h.epoch != m.epoch {
		s.state = Stale
		m.stats.Discarded++
		m.lock.Unlock()
		glog.V(2).Infof("buffer %d discarded", h.index)
		m.maybeRequestFill()
		return
	}
	m.seq++
	s.state, s.length, s.last, s.seq = Ready, length, last, m.seq
	m.stats.Filled++
	if last {
		m.ending = true
	}
	m.lock.Unlock()

	if m.Notifier != nil {
		m.Notifier.BufferReady()
	}
	m.maybeRequestFill()
}

// AcquireForDrain returns the buffer lent by the previous call to Stale
// and lends the oldest Ready buffer. When the buffer flagged last has been
// lent, the next call which finds nothing Ready reports IsLast exactly once.
func (m *Manager) AcquireForDrain() (DrainResult, bool) {
	m.lock.Lock()
	if m.draining >= 0 {
		if s := &m.slots[m.draining]; s.state == Emptying {
			s.state = Stale
			if m.drainingGen == m.drainGen {
				m.stats.Drained++
			} else {
				m.stats.Discarded++
				glog.V(2).Infof("buffer %d abandoned", m.draining)
			}
		}
		m.draining = -1
	}
	next := -1
	for n := range m.slots {
		if m.slots[n].state == Ready && (next < 0 || m.slots[n].seq < m.slots[next].seq) {
			next = n
		}
	}
	if next < 0 {
		end := m.endPending
		m.endPending = false
		res := DrainResult{Index: -1, IsLast: end, gen: m.drainGen, epoch: m.epoch}
		m.lock.Unlock()
		m.maybeRequestFill()
		return res, false
	}
	s := &m.slots[next]
	s.state = Emptying
	m.draining, m.drainingGen = next, m.drainGen
	if s.last {
		m.endPending = true
	}
	res := DrainResult{
		Index:   next,
		Buf:     s.buf,
		Symbols: s.length,
		Words:   symbol.WordsFor(s.length),
		gen:     m.drainGen,
		epoch:   m.epoch,
	}
	m.lock.Unlock()
	m.maybeRequestFill()
	return res, true
}

// StopTelemetryProcessing suppresses fills and discards pending frames.
// A buffer being filled is discarded when released. A buffer being drained
// stays Emptying until the drain returns it, but Transmit refuses to write
// any more of it.
func (m *Manager) StopTelemetryProcessing() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stopped = true
	m.endPending = false
	m.drainGen++
	for n := range m.slots {
		if m.slots[n].state == Ready {
			m.slots[n].state = Stale
			m.stats.Discarded++
		}
	}
}

// InitRestart begins a fresh sequence: fills are enabled again and the end
// of the previous sequence is forgotten. Ready frames of the previous
// sequence are discarded, and a buffer still being filled for it is
// discarded when released. The Emptying buffer is left to the drain.
func (m *Manager) InitRestart() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stopped, m.ending, m.endPending = false, false, false
	m.epoch++
	for n := range m.slots {
		if m.slots[n].state == Ready {
			m.slots[n].state = Stale
			m.stats.Discarded++
		}
	}
}

// Transmit runs write for a buffer lent by AcquireForDrain unless it was
// abandoned by StopTelemetryProcessing, and reports whether write ran.
// write runs with the Manager locked, so a stop waits for a write in
// progress and nothing of the buffer is written once it returns.
func (m *Manager) Transmit(res DrainResult, write func() error) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if res.gen != m.drainGen || m.draining != res.Index {
		return false, nil
	}
	return true, write()
}

// SequenceCurrent tells whether the sequence res belongs to is still being
// transmitted, i.e. neither StopTelemetryProcessing nor InitRestart was
// called since res was returned.
func (m *Manager) SequenceCurrent(res DrainResult) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return res.gen == m.drainGen && res.epoch == m.epoch
}

// RequestFill asks the producer for a fill when one is due and reports
// whether a request was issued.
func (m *Manager) RequestFill() bool {
	return m.maybeRequestFill()
}

// States returns a snapshot of the buffer states.
func (m *Manager) States() [Slots]State {
	m.lock.Lock()
	defer m.lock.Unlock()
	var states [Slots]State
	for n := range m.slots {
		states[n] = m.slots[n].state
	}
	return states
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.stats
}

func (m *Manager) fillingLocked() int {
	for n := range m.slots {
		if m.slots[n].state == Filling {
			return n
		}
	}
	return -1
}

func (m *Manager) maybeRequestFill() bool {
	m.lock.Lock()
	due := !m.stopped && !m.ending && !m.fillRequested && m.fillingLocked() < 0
	if due {
		due = false
		for n := range m.slots {
			if m.slots[n].state == Stale {
				due = true
				break
			}
		}
	}
	if !due || m.Requester == nil {
		m.lock.Unlock()
		return false
	}
	m.fillRequested = true
	m.stats.FillRequests++
	m.lock.Unlock()

	if err := m.Requester.RequestFill(); err != nil {
		glog.Errorf("fill request failed: %v", err)
		m.lock.Lock()
		m.fillRequested = false
		m.stats.RequestsFailed++
		m.lock.Unlock()
		return false
	}
	return true
}
