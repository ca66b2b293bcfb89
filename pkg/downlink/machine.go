package downlink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/frame"
	"github.com/robotalks/downlink.go/pkg/framework"
)

// Timing configures the alarms and delays of the Machine.
type Timing struct {
	// IdlePeriod is the pause between beacons in the safe modes.
	IdlePeriod time.Duration `yaml:"idle-period"`
	// BeaconTimeout ends a beacon when no FrameComplete arrives.
	BeaconTimeout time.Duration `yaml:"beacon-timeout"`
	// ScienceDuration is how long science mode lasts.
	ScienceDuration time.Duration `yaml:"science-duration"`
	// RxWindow is how long the transmitter stays off to let the receiver
	// listen when the standby partner is unavailable.
	RxWindow time.Duration `yaml:"rx-window"`
	// SettleDelay follows unkeying before the next action.
	SettleDelay time.Duration `yaml:"settle-delay"`
	// SilenceWindow is the bare carrier sent before beacon data.
	SilenceWindow time.Duration `yaml:"silence-window"`
	// CollectPeriod is the queue idle time after which telemetry is
	// collected.
	CollectPeriod time.Duration `yaml:"collect-period"`
	// PostTimeout bounds the retries of commands which must not be lost.
	PostTimeout time.Duration `yaml:"post-timeout"`
}

// DefaultTiming returns flight defaults.
func DefaultTiming() Timing {
	return Timing{
		IdlePeriod:      2 * time.Minute,
		BeaconTimeout:   15 * time.Second,
		ScienceDuration: 30 * time.Minute,
		RxWindow:        2 * time.Second,
		SettleDelay:     100 * time.Millisecond,
		SilenceWindow:   500 * time.Millisecond,
		CollectPeriod:   time.Second,
		PostTimeout:     time.Second,
	}
}

// QueueDepth is the depth of the Machine's event queue.
const QueueDepth = 16

// ErrInvalidEvent is returned when posting an unknown event.
var ErrInvalidEvent = errors.New("invalid event")

// EventMsg carries an event to the Machine.
type EventMsg struct {
	Event Event
}

// NewMessage implements framework.Message.
func (m *EventMsg) NewMessage() framework.Message { return &EventMsg{} }

type collectMsg struct{}

func (m *collectMsg) NewMessage() framework.Message { return &collectMsg{} }

type alarmKind int

const (
	idleAlarm alarmKind = iota
	beaconAlarm
	scienceAlarm
	rxWindowAlarm
	numAlarms
)

var alarmNames = [...]string{"idle", "beacon", "science", "rx-window"}

func (k alarmKind) String() string {
	return alarmNames[k]
}

type alarmMsg struct {
	kind alarmKind
	gen  uint64
}

func (m *alarmMsg) NewMessage() framework.Message { return &alarmMsg{} }

// Machine is the downlink state machine. All state is owned by its task;
// other goroutines interact through PostEvent, PostCommand, FrameComplete
// and the read-only accessors.
type Machine struct {
	Table     TransitionTable
	Timing    Timing
	Radio     Radio
	Store     ConfigStore
	Buffers   FrameBuffers
	Producer  Sequencer
	Partner   StandbyPartner
	Watchdog  Watchdog
	Collector Collector
	Notifier  StateNotifier
	Sleep     func(context.Context, time.Duration)

	task   *framework.Task
	alarms [numAlarms]*framework.Alarm

	state         State
	inhibitMode   Mode
	scienceReturn State

	current int32
	mode    uint32
}

// NewMachine creates a Machine with the default transition table.
func NewMachine(name string, timing Timing) *Machine {
	m := &Machine{
		Table:  DefaultTransitions(),
		Timing: timing,
		task:   framework.NewTask(name, QueueDepth),
		state:  Safe,
	}
	m.task.Handler = m
	m.task.Idle = m
	m.task.Timeout = timing.CollectPeriod
	for n := range m.alarms {
		kind := alarmKind(n)
		m.alarms[n] = framework.NewAlarm(name+"/"+kind.String(), m.task, func(gen uint64) framework.Message {
			return &alarmMsg{kind: kind, gen: gen}
		})
	}
	m.publish(Safe, Mode(0))
	return m
}

// Name implements framework.Named.
func (m *Machine) Name() string {
	return m.task.Name()
}

// Run implements framework.Runnable. It restores the boot state and then
// processes events until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	m.Init(ctx)
	defer m.stopAlarms(idleAlarm, beaconAlarm, scienceAlarm, rxWindowAlarm)
	return m.task.Run(ctx)
}

// Init enters the boot state derived from the persisted flags.
func (m *Machine) Init(ctx context.Context) {
	autoSafe := m.readFlag(KeyAutoSafe, false)
	inSafeMode := m.readFlag(KeyInSafeMode, true)
	state := Safe
	switch {
	case autoSafe:
		state = AutoSafe
	case !inSafeMode:
		state = Health
	}
	glog.Infof("%s: boot into %v (AutoSafe=%v InSafeMode=%v)", m.Name(), state, autoSafe, inSafeMode)
	m.enterState(ctx, state, state)
	m.setState(state, NoEvent)
}

// PostEvent queues an event without blocking.
func (m *Machine) PostEvent(ev Event) error {
	if !ev.Valid() {
		return ErrInvalidEvent
	}
	return m.task.Post(&EventMsg{Event: ev})
}

// PostCommand queues an event which must not be lost, retrying while the
// queue is full for up to Timing.PostTimeout.
func (m *Machine) PostCommand(ctx context.Context, ev Event) error {
	if !ev.Valid() {
		return ErrInvalidEvent
	}
	return m.task.PostRetry(ctx, &EventMsg{Event: ev}, m.Timing.PostTimeout)
}

// FrameComplete reports the radio finished transmitting a sequence.
func (m *Machine) FrameComplete() error {
	return m.task.PostRetry(context.Background(), &EventMsg{Event: FrameComplete}, m.Timing.PostTimeout)
}

// Mode returns the current operating mode.
func (m *Machine) Mode() Mode {
	return Mode(atomic.LoadUint32(&m.mode))
}

// State returns the current state.
func (m *Machine) State() State {
	return State(atomic.LoadInt32(&m.current))
}

// HandleMessage implements framework.MessageHandler.
func (m *Machine) HandleMessage(ctx context.Context, msg framework.Message) {
	m.report()
	switch msg := msg.(type) {
	case *EventMsg:
		m.Dispatch(ctx, msg.Event, false)
	case *alarmMsg:
		if !m.alarms[msg.kind].IsCurrent(msg.gen) {
			glog.V(3).Infof("%s: stale %v alarm ignored", m.Name(), msg.kind)
			return
		}
		m.Dispatch(ctx, m.alarmEvent(msg.kind), msg.kind == rxWindowAlarm)
	case *collectMsg:
		if m.Collector != nil {
			m.Collector.Collect(ctx)
		}
	default:
		glog.Warningf("%s: unexpected message %T", m.Name(), msg)
	}
}

// Idle implements framework.IdleHandler.
func (m *Machine) Idle(ctx context.Context) {
	m.report()
	if err := m.task.Post(&collectMsg{}); err != nil {
		glog.V(2).Infof("%s: collect skipped: %v", m.Name(), err)
	}
}

// Dispatch processes one event on the task goroutine. synthetic marks a
// FrameComplete raised by the end of the receive window.
func (m *Machine) Dispatch(ctx context.Context, ev Event, synthetic bool) {
	from := m.state
	next := m.Table.Lookup(from, ev)
	switch next {
	case NoChange:
		glog.V(3).Infof("%s: %v in %v: no change", m.Name(), ev, from)
		return
	case Unexpected:
		glog.Warningf("%s: unexpected event %v in %v", m.Name(), ev, from)
		return
	case TurnOnRx:
		m.turnOnRx(ctx, synthetic)
		return
	}
	glog.Infof("%s: %v -> %v on %v", m.Name(), from, next, ev)
	m.enterState(ctx, from, next)
	m.setState(next, ev)
}

func (m *Machine) alarmEvent(kind alarmKind) Event {
	switch kind {
	case idleAlarm:
		return IdleTimeout
	case beaconAlarm:
		return BeaconTimeout
	case scienceAlarm:
		if m.scienceReturn == Health {
			return EnterHealth
		}
		return EnterSafe
	}
	return FrameComplete
}

func (m *Machine) enterState(ctx context.Context, from, to State) {
	switch to {
	case Safe, AutoSafe, EclipseSafe:
		m.stopAlarms(beaconAlarm, scienceAlarm, rxWindowAlarm)
		// Stop before unkeying: the flush then removes every word of the
		// abandoned frame.
		m.Buffers.StopTelemetryProcessing()
		m.unkey()
		m.sleep(ctx, m.Timing.SettleDelay)
		m.startAlarm(idleAlarm, m.Timing.IdlePeriod)
		switch to {
		case Safe:
			m.writeFlag(KeyInSafeMode, true)
			m.writeFlag(KeyAutoSafe, false)
		case AutoSafe:
			m.writeFlag(KeyAutoSafe, true)
		}
	case SafeBeacon, AutoSafeBeacon, EclipseSafeBeacon:
		m.stopAlarms(idleAlarm)
		m.setPower()
		m.key(KeyCarrier)
		m.sleep(ctx, m.Timing.SilenceWindow)
		m.startSequence(frame.BeaconSequence())
		m.key(KeyData)
		m.startAlarm(beaconAlarm, m.Timing.BeaconTimeout)
	case Health:
		m.stopAlarms(idleAlarm, beaconAlarm, scienceAlarm, rxWindowAlarm)
		m.setPower()
		m.startSequence(frame.HealthSequence())
		m.key(KeyData)
		m.writeFlag(KeyInSafeMode, false)
		m.writeFlag(KeyAutoSafe, false)
	case Science:
		m.stopAlarms(idleAlarm, beaconAlarm, rxWindowAlarm)
		m.scienceReturn = Safe
		if from == Health {
			m.scienceReturn = Health
		}
		m.setPower()
		m.startSequence(frame.ScienceSequence())
		m.key(KeyData)
		m.startAlarm(scienceAlarm, m.Timing.ScienceDuration)
	case TransmitInhibit:
		m.inhibitMode = from.Mode()
		m.stopAlarms(idleAlarm, beaconAlarm, scienceAlarm, rxWindowAlarm)
		m.Buffers.StopTelemetryProcessing()
		m.unkey()
	}
}

// turnOnRx ends a framing sequence. Framing resumes right away when the
// standby partner can receive; otherwise the transmitter is switched off
// for the receive window, whose end raises a synthetic FrameComplete.
func (m *Machine) turnOnRx(ctx context.Context, synthetic bool) {
	if synthetic || m.Partner == nil || m.Partner.Available() {
		m.stopAlarms(rxWindowAlarm)
		seq := frame.HealthSequence()
		if m.state == Science {
			seq = frame.ScienceSequence()
		}
		glog.V(2).Infof("%s: restart %s sequence", m.Name(), seq.Name)
		m.startSequence(seq)
		m.key(KeyData)
		return
	}
	glog.V(2).Infof("%s: receive window %v", m.Name(), m.Timing.RxWindow)
	m.unkey()
	m.startAlarm(rxWindowAlarm, m.Timing.RxWindow)
}

func (m *Machine) setState(s State, ev Event) {
	m.state = s
	mode := s.Mode()
	if s == TransmitInhibit {
		mode = m.inhibitMode
	}
	m.publish(s, mode)
	if m.Notifier != nil {
		m.Notifier.StateChanged(Status{State: s, Mode: mode, Event: ev})
	}
}

func (m *Machine) publish(s State, mode Mode) {
	atomic.StoreInt32(&m.current, int32(s))
	atomic.StoreUint32(&m.mode, uint32(mode))
}

func (m *Machine) startSequence(seq *frame.Sequence) {
	m.Producer.Restart(seq)
	m.Buffers.RequestFill()
}

func (m *Machine) startAlarm(kind alarmKind, d time.Duration) {
	if err := m.alarms[kind].Start(d); err != nil {
		glog.Errorf("%s: %v alarm: %v", m.Name(), kind, err)
	}
}

func (m *Machine) stopAlarms(kinds ...alarmKind) {
	for _, kind := range kinds {
		m.alarms[kind].Stop()
	}
}

func (m *Machine) key(mode KeyMode) {
	if err := m.Radio.Key(mode); err != nil {
		glog.Errorf("%s: key %v: %v", m.Name(), mode, err)
	}
}

func (m *Machine) unkey() {
	if err := m.Radio.Unkey(); err != nil {
		glog.Errorf("%s: unkey: %v", m.Name(), err)
	}
}

func (m *Machine) setPower() {
	level := PowerNormal
	if m.readFlag(KeyLowPower, false) {
		level = PowerLow
	}
	if err := m.Radio.SetPower(level); err != nil {
		glog.Errorf("%s: set power %v: %v", m.Name(), level, err)
	}
}

func (m *Machine) readFlag(key string, def bool) bool {
	val, err := m.Store.ReadBoolState(key, def)
	if err != nil {
		glog.Errorf("%s: read %s: %v", m.Name(), key, err)
		return def
	}
	return val
}

func (m *Machine) writeFlag(key string, val bool) {
	if err := m.Store.WriteBoolState(key, val); err != nil {
		glog.Errorf("%s: write %s=%v: %v", m.Name(), key, val, err)
	}
}

func (m *Machine) report() {
	if m.Watchdog != nil {
		m.Watchdog.Report(m.Name())
	}
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if m.Sleep != nil {
		m.Sleep(ctx, d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
