package radio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/downlink"
)

// ErrFIFOOverflow is returned when a write exceeds the free space.
var ErrFIFOOverflow = errors.New("fifo overflow")

// SymbolSink receives the words shifted out of the transmitter.
type SymbolSink interface {
	WriteWords(words []uint32) error
}

// SimConfig describes the simulated transmitter.
type SimConfig struct {
	// Depth is the FIFO size in words.
	Depth int `yaml:"depth"`
	// LowWater is the fill level at or below which FIFOLow fires.
	LowWater int `yaml:"low-water"`
	// WordsPerTick is the number of words shifted out every Tick.
	WordsPerTick int `yaml:"words-per-tick"`
	// Tick is the shift period.
	Tick time.Duration `yaml:"tick"`
}

// DefaultSimConfig shifts 3 symbols per word at 9600 words/s.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Depth:        64,
		LowWater:     16,
		WordsPerTick: 96,
		Tick:         10 * time.Millisecond,
	}
}

// Sim is a simulated transmitter. Words written to its FIFO are shifted out
// to the Sink while keyed in data mode. It implements FIFO and
// downlink.Radio.
type Sim struct {
	Config SimConfig
	Sink   SymbolSink
	// OnIRQ receives fired interrupts, usually Drain.Interrupt.
	OnIRQ func(IRQ)

	lock  sync.Mutex
	fifo  []uint32
	armed [2]bool
	keyed bool
	key   downlink.KeyMode
	power downlink.PowerLevel
	sent  uint64
}

// NewSim creates a Sim.
func NewSim(conf SimConfig, sink SymbolSink) *Sim {
	return &Sim{
		Config: conf,
		Sink:   sink,
		fifo:   make([]uint32, 0, conf.Depth),
	}
}

// Name implements framework.Named.
func (s *Sim) Name() string {
	return "radio"
}

// FIFOFree implements FIFO.
func (s *Sim) FIFOFree() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.Config.Depth - len(s.fifo)
}

// WriteFIFO implements FIFO.
func (s *Sim) WriteFIFO(words []uint32) error {
	s.lock.Lock()
	if len(s.fifo)+len(words) > s.Config.Depth {
		s.lock.Unlock()
		return ErrFIFOOverflow
	}
	s.fifo = append(s.fifo, words...)
	fired := s.levelsLocked()
	s.lock.Unlock()
	s.fire(fired)
	return nil
}

// ArmInterrupt implements FIFO. Interrupts are level triggered: an armed
// interrupt whose condition already holds fires immediately.
func (s *Sim) ArmInterrupt(irq IRQ) error {
	if irq != FIFOLow && irq != FIFOEmpty {
		return errors.New("unknown interrupt " + irq.String())
	}
	s.lock.Lock()
	s.armed[irq] = true
	fired := s.levelsLocked()
	s.lock.Unlock()
	s.fire(fired)
	return nil
}

// Key implements downlink.Radio.
func (s *Sim) Key(mode downlink.KeyMode) error {
	s.lock.Lock()
	s.keyed, s.key = true, mode
	s.lock.Unlock()
	glog.V(2).Infof("radio: keyed %v", mode)
	return nil
}

// Unkey implements downlink.Radio. The FIFO is flushed.
func (s *Sim) Unkey() error {
	s.lock.Lock()
	s.keyed = false
	s.fifo = s.fifo[:0]
	fired := s.levelsLocked()
	s.lock.Unlock()
	glog.V(2).Info("radio: unkeyed")
	s.fire(fired)
	return nil
}

// SetPower implements downlink.Radio.
func (s *Sim) SetPower(level downlink.PowerLevel) error {
	s.lock.Lock()
	s.power = level
	s.lock.Unlock()
	glog.V(2).Infof("radio: power %v", level)
	return nil
}

// Keyed returns whether the transmitter is on and in which mode.
func (s *Sim) Keyed() (bool, downlink.KeyMode) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.keyed, s.key
}

// Power returns the output level.
func (s *Sim) Power() downlink.PowerLevel {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.power
}

// Sent returns the number of words transmitted.
func (s *Sim) Sent() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sent
}

// Tick shifts out up to WordsPerTick words. Nothing moves unless keyed in
// data mode.
func (s *Sim) Tick() {
	s.lock.Lock()
	if !s.keyed || s.key != downlink.KeyData || len(s.fifo) == 0 {
		s.lock.Unlock()
		return
	}
	n := s.Config.WordsPerTick
	if n > len(s.fifo) {
		n = len(s.fifo)
	}
	out := make([]uint32, n)
	copy(out, s.fifo)
	s.fifo = append(s.fifo[:0], s.fifo[n:]...)
	s.sent += uint64(n)
	fired := s.levelsLocked()
	s.lock.Unlock()

	if s.Sink != nil {
		if err := s.Sink.WriteWords(out); err != nil {
			glog.Errorf("radio: sink: %v", err)
		}
	}
	s.fire(fired)
}

// Run implements framework.Runnable.
func (s *Sim) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Sim) levelsLocked() []IRQ {
	var fired []IRQ
	if s.armed[FIFOLow] && len(s.fifo) <= s.Config.LowWater {
		s.armed[FIFOLow] = false
		fired = append(fired, FIFOLow)
	}
	if s.armed[FIFOEmpty] && len(s.fifo) == 0 {
		s.armed[FIFOEmpty] = false
		fired = append(fired, FIFOEmpty)
	}
	return fired
}

func (s *Sim) fire(irqs []IRQ) {
	if s.OnIRQ == nil {
		return
	}
	for _, irq := range irqs {
		s.OnIRQ(irq)
	}
}
