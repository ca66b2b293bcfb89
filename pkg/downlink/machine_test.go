package downlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/downlink.go/pkg/buffer"
	"github.com/robotalks/downlink.go/pkg/codec"
	"github.com/robotalks/downlink.go/pkg/frame"
	"github.com/robotalks/downlink.go/pkg/framework"
	"github.com/robotalks/downlink.go/pkg/symbol"
)

type fakeRadio struct {
	calls []string
	keyed bool
	power PowerLevel
}

func (r *fakeRadio) Key(mode KeyMode) error {
	r.calls = append(r.calls, "key "+mode.String())
	r.keyed = true
	return nil
}

func (r *fakeRadio) Unkey() error {
	r.calls = append(r.calls, "unkey")
	r.keyed = false
	return nil
}

func (r *fakeRadio) SetPower(level PowerLevel) error {
	r.calls = append(r.calls, "power "+level.String())
	r.power = level
	return nil
}

func (r *fakeRadio) reset() {
	r.calls = nil
}

type memStore map[string]bool

func (s memStore) ReadBoolState(key string, def bool) (bool, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s memStore) WriteBoolState(key string, value bool) error {
	s[key] = value
	return nil
}

type partner bool

func (p partner) Available() bool { return bool(p) }

type harness struct {
	m        *Machine
	radio    *fakeRadio
	store    memStore
	buffers  *buffer.Manager
	producer *Producer
	prodTask *framework.Task
	requests int
}

func testTiming() Timing {
	return Timing{
		IdlePeriod:      time.Hour,
		BeaconTimeout:   time.Hour,
		ScienceDuration: time.Hour,
		RxWindow:        time.Hour,
		PostTimeout:     10 * time.Millisecond,
	}
}

func newHarness(t *testing.T, store memStore) *harness {
	if store == nil {
		store = memStore{}
	}
	h := &harness{radio: &fakeRadio{}, store: store}
	h.prodTask = framework.NewTask("producer", 16)
	h.buffers = buffer.NewManager(buffer.FillRequestFunc(func() error {
		h.requests++
		return h.prodTask.Post(&FillRequestMsg{})
	}), nil)
	h.producer = NewProducer(h.buffers, frame.NewSampleSource(1, 0))
	h.producer.Queue = h.prodTask
	h.prodTask.Handler = h.producer

	h.m = NewMachine("downlink", testTiming())
	h.m.Radio = h.radio
	h.m.Store = h.store
	h.m.Buffers = h.buffers
	h.m.Producer = h.producer
	h.producer.Mode = h.m.Mode
	t.Cleanup(func() {
		h.m.stopAlarms(idleAlarm, beaconAlarm, scienceAlarm, rxWindowAlarm)
	})
	h.m.Init(context.Background())
	return h
}

func (h *harness) post(t *testing.T, ev Event) {
	require.NoError(t, h.m.PostEvent(ev))
	h.m.task.Drain(context.Background())
}

func (h *harness) produce() int {
	return h.prodTask.Drain(context.Background())
}

func (h *harness) waitQueued(t *testing.T) {
	deadline := time.Now().Add(time.Second)
	for h.m.task.Len() == 0 {
		require.True(t, time.Now().Before(deadline), "no message queued")
		time.Sleep(time.Millisecond)
	}
}

func decodeAny(sym uint16) int {
	for _, rd := range []codec.Disparity{codec.NegDisparity, codec.PosDisparity} {
		if c, _, err := codec.Decode(rd, sym); err == nil {
			return c
		}
	}
	return -1
}

func frameHeader(res buffer.DrainResult) frame.Header {
	var b [frame.HeaderLen]byte
	for i := range b {
		b[i] = byte(decodeAny(symbol.GetSymbol(res.Buf, i+1)))
	}
	return frame.ParseHeader(b[:])
}

func TestDefaultTableIsTotal(t *testing.T) {
	table := DefaultTransitions()
	require.Len(t, table, NumStates*NumEvents)
	for s := State(0); s < NumStates; s++ {
		for _, ev := range Events() {
			next := table.Lookup(s, ev)
			require.True(t, next.Valid() || next == NoChange || next == Unexpected || next == TurnOnRx,
				"%v/%v: %v", s, ev, next)
		}
	}
	require.Equal(t, Unexpected, table.Lookup(State(42), EnterSafe))
}

func TestTransitionTableValidation(t *testing.T) {
	rows := DefaultRows()
	delete(rows, Science)
	_, err := NewTransitionTable(rows)
	require.Error(t, err)

	rows = DefaultRows()
	row := rows[Health]
	row[EnterSafe] = State(99)
	rows[Health] = row
	_, err = NewTransitionTable(rows)
	require.Error(t, err)
}

func TestTransmitInhibitIsAbsorbing(t *testing.T) {
	table := DefaultTransitions()
	for _, ev := range Events() {
		if ev == EnableTx {
			require.Equal(t, Safe, table.Lookup(TransmitInhibit, ev))
		} else {
			require.Equal(t, NoChange, table.Lookup(TransmitInhibit, ev), "%v", ev)
		}
	}
	for s := State(0); s < NumStates; s++ {
		require.Equal(t, TransmitInhibit, table.Lookup(s, InhibitTx).orSelf(s), "%v", s)
	}
}

func (s State) orSelf(self State) State {
	if s == NoChange {
		return self
	}
	return s
}

func TestBootState(t *testing.T) {
	testCases := []struct {
		name   string
		store  memStore
		expect State
		mode   Mode
	}{
		{"fresh", memStore{}, Safe, ModeSafe},
		{"health", memStore{KeyInSafeMode: false}, Health, ModeHealth},
		{"safe", memStore{KeyInSafeMode: true}, Safe, ModeSafe},
		{"autosafe", memStore{KeyAutoSafe: true, KeyInSafeMode: false}, AutoSafe, ModeAutoSafe},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.store)
			require.Equal(t, tc.expect, h.m.State())
			require.Equal(t, tc.mode, h.m.Mode())
			require.Equal(t, tc.expect == Health, h.radio.keyed)
		})
	}
}

func TestSafeBeaconCycle(t *testing.T) {
	var changes []Status
	h := newHarness(t, nil)
	h.m.Notifier = StateChangedFunc(func(s Status) { changes = append(changes, s) })
	require.Equal(t, Safe, h.m.State())
	require.Equal(t, ModeSafe, h.m.Mode())
	require.False(t, h.radio.keyed)
	require.True(t, h.store[KeyInSafeMode])
	require.Equal(t, 0, h.requests)

	h.radio.reset()
	h.post(t, IdleTimeout)
	require.Equal(t, SafeBeacon, h.m.State())
	require.Equal(t, ModeSafe, h.m.Mode())
	require.Equal(t, []string{"power normal", "key carrier", "key data"}, h.radio.calls)
	require.Equal(t, 1, h.requests)
	require.False(t, h.m.alarms[idleAlarm].Active())
	require.True(t, h.m.alarms[beaconAlarm].Active())

	require.Equal(t, 2, h.produce())
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Ready, buffer.Ready}, h.buffers.States())
	require.Zero(t, h.produce(), "beacon is two frames")

	var types []frame.Type
	for {
		res, ok := h.buffers.AcquireForDrain()
		if !ok {
			require.True(t, res.IsLast)
			break
		}
		require.Equal(t, codec.SymbolsFor(frame.DataLen, true, len(types) == 1), res.Symbols)
		types = append(types, frameHeader(res).Type)
	}
	require.Equal(t, []frame.Type{frame.SafeData1, frame.SafeData2}, types)

	h.radio.reset()
	h.post(t, FrameComplete)
	require.Equal(t, Safe, h.m.State())
	require.Equal(t, []string{"unkey"}, h.radio.calls)
	require.True(t, h.m.alarms[idleAlarm].Active())
	require.False(t, h.m.alarms[beaconAlarm].Active())

	require.Len(t, changes, 2)
	require.Equal(t, Status{State: SafeBeacon, Mode: ModeSafe, Event: IdleTimeout}, changes[0])
	require.Equal(t, Status{State: Safe, Mode: ModeSafe, Event: FrameComplete}, changes[1])
}

func TestBeaconTimeout(t *testing.T) {
	h := newHarness(t, memStore{KeyAutoSafe: true, KeyLowPower: true})
	require.Equal(t, AutoSafe, h.m.State())
	h.post(t, IdleTimeout)
	require.Equal(t, AutoSafeBeacon, h.m.State())
	require.Equal(t, PowerLow, h.radio.power)
	h.post(t, BeaconTimeout)
	require.Equal(t, AutoSafe, h.m.State())
	require.True(t, h.store[KeyAutoSafe])
}

func TestInhibitFromHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, EnterHealth)
	require.Equal(t, Health, h.m.State())
	require.Equal(t, ModeHealth, h.m.Mode())
	require.True(t, h.radio.keyed)
	require.False(t, h.store[KeyInSafeMode])
	require.False(t, h.store[KeyAutoSafe])

	h.post(t, InhibitTx)
	require.Equal(t, TransmitInhibit, h.m.State())
	require.Equal(t, ModeHealth, h.m.Mode())
	require.False(t, h.radio.keyed)

	h.radio.reset()
	for _, ev := range Events() {
		if ev != EnableTx {
			h.post(t, ev)
			require.Equal(t, TransmitInhibit, h.m.State())
		}
	}
	require.Empty(t, h.radio.calls)
	require.False(t, h.store[KeyInSafeMode])

	h.post(t, EnableTx)
	require.Equal(t, Safe, h.m.State())
	require.Equal(t, ModeSafe, h.m.Mode())
	require.True(t, h.store[KeyInSafeMode])
}

func TestScienceRestartKeepsEmptyingBuffer(t *testing.T) {
	h := newHarness(t, memStore{KeyInSafeMode: false})
	require.Equal(t, Health, h.m.State())
	h.post(t, EnterScience)
	require.Equal(t, Science, h.m.State())
	require.Equal(t, ModeScience, h.m.Mode())

	// Both buffers are filled and the drain takes the first: nothing is
	// Stale.
	require.Equal(t, 2, h.produce())
	first, ok := h.buffers.AcquireForDrain()
	require.True(t, ok)
	require.Equal(t, 0, first.Index)
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Emptying, buffer.Ready}, h.buffers.States())

	requests := h.requests
	discarded := h.buffers.Stats().Discarded
	h.radio.reset()
	h.post(t, FrameComplete)
	require.Equal(t, Science, h.m.State())
	require.Equal(t, []string{"key data"}, h.radio.calls)
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Emptying, buffer.Stale}, h.buffers.States())
	require.Equal(t, discarded+1, h.buffers.Stats().Discarded)
	require.Equal(t, requests+1, h.requests, "refill for the restarted cycle")

	require.Equal(t, 1, h.produce())
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Emptying, buffer.Ready}, h.buffers.States())
	second, ok := h.buffers.AcquireForDrain()
	require.True(t, ok)
	require.Equal(t, 1, second.Index)
	require.Equal(t, frame.Science, frameHeader(second).Type)
}

func TestModeChangeDiscardsQueuedFrames(t *testing.T) {
	h := newHarness(t, memStore{KeyInSafeMode: false})
	require.Equal(t, 2, h.produce())
	require.Equal(t, [buffer.Slots]buffer.State{buffer.Ready, buffer.Ready}, h.buffers.States())

	h.post(t, EnterScience)
	require.Equal(t, Science, h.m.State())
	require.Equal(t, uint64(2), h.buffers.Stats().Discarded)
	require.Equal(t, 2, h.produce())

	var types []frame.Type
	for i := 0; i < 2; i++ {
		res, ok := h.buffers.AcquireForDrain()
		require.True(t, ok)
		types = append(types, frameHeader(res).Type)
	}
	require.Equal(t, frame.ScienceSequence().Types[:2], types, "no health frame opens the science cycle")
}

// enter puts the harness Machine into s the way a transition would.
func (h *harness) enter(s State) {
	from := h.m.State()
	h.m.enterState(context.Background(), from, s)
	h.m.setState(s, NoEvent)
}

func TestDispatchFollowsTable(t *testing.T) {
	rows := DefaultRows()
	for s := State(0); s < NumStates; s++ {
		for _, ev := range Events() {
			s, ev := s, ev
			t.Run(s.String()+"/"+ev.String(), func(t *testing.T) {
				h := newHarness(t, nil)
				h.enter(s)
				require.Equal(t, s, h.m.State())

				h.m.Dispatch(context.Background(), ev, false)
				expect := rows[s][ev]
				if !expect.Valid() {
					expect = s
				}
				require.Equal(t, expect, h.m.State())
			})
		}
	}
}

func TestScienceExpiry(t *testing.T) {
	testCases := []struct {
		name   string
		store  memStore
		expect State
	}{
		{"from health", memStore{KeyInSafeMode: false}, Health},
		{"from safe", memStore{}, Safe},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.store)
			h.post(t, EnterScience)
			require.Equal(t, Science, h.m.State())
			h.m.startAlarm(scienceAlarm, time.Millisecond)
			h.waitQueued(t)
			h.m.task.Drain(context.Background())
			require.Equal(t, tc.expect, h.m.State())
		})
	}
}

func TestStaleAlarmIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.m.startAlarm(idleAlarm, time.Millisecond)
	h.waitQueued(t)
	h.m.alarms[idleAlarm].Stop()
	h.m.task.Drain(context.Background())
	require.Equal(t, Safe, h.m.State())
}

func TestReceiveWindow(t *testing.T) {
	h := newHarness(t, memStore{KeyInSafeMode: false})
	h.m.Partner = partner(false)
	require.Equal(t, Health, h.m.State())
	h.produce()

	h.radio.reset()
	h.post(t, FrameComplete)
	require.Equal(t, Health, h.m.State())
	require.Equal(t, []string{"unkey"}, h.radio.calls)
	require.True(t, h.m.alarms[rxWindowAlarm].Active())

	h.radio.reset()
	requests := h.requests
	h.m.startAlarm(rxWindowAlarm, time.Millisecond)
	h.waitQueued(t)
	h.m.task.Drain(context.Background())
	require.Equal(t, Health, h.m.State())
	require.Equal(t, []string{"key data"}, h.radio.calls)
	require.True(t, h.requests >= requests)

	h.m.Partner = partner(true)
	h.radio.reset()
	h.post(t, FrameComplete)
	require.Equal(t, []string{"key data"}, h.radio.calls)
	require.False(t, h.m.alarms[rxWindowAlarm].Active())
}

func TestUnexpectedEventIgnored(t *testing.T) {
	h := newHarness(t, memStore{KeyInSafeMode: false})
	h.radio.reset()
	h.post(t, BeaconTimeout)
	require.Equal(t, Health, h.m.State())
	require.Empty(t, h.radio.calls)
}

func TestPostErrors(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, ErrInvalidEvent, h.m.PostEvent(Event(77)))
	require.Equal(t, ErrInvalidEvent, h.m.PostCommand(context.Background(), NoEvent))
	for i := 0; i < QueueDepth; i++ {
		require.NoError(t, h.m.PostEvent(EnterSafe))
	}
	require.Equal(t, framework.ErrQueueFull, h.m.PostEvent(EnterSafe))
	require.Equal(t, context.DeadlineExceeded, h.m.PostCommand(context.Background(), EnterHealth))
	require.Equal(t, context.DeadlineExceeded, h.m.FrameComplete())
}

type countingCollector struct{ n int }

func (c *countingCollector) Collect(context.Context) { c.n++ }

func TestIdleCollectsTelemetry(t *testing.T) {
	h := newHarness(t, nil)
	c := &countingCollector{}
	reports := 0
	h.m.Collector = c
	h.m.Watchdog = WatchdogFunc(func(name string) {
		require.Equal(t, "downlink", name)
		reports++
	})
	h.m.Idle(context.Background())
	require.Equal(t, 1, h.m.task.Drain(context.Background()))
	require.Equal(t, 1, c.n)
	require.Equal(t, 2, reports)
}

type failingStore struct{}

func (failingStore) ReadBoolState(string, bool) (bool, error) { return false, errors.New("flash error") }
func (failingStore) WriteBoolState(string, bool) error        { return errors.New("flash error") }

func TestStoreFailureFallsBackToDefaults(t *testing.T) {
	m := NewMachine("downlink", testTiming())
	m.Radio = &fakeRadio{}
	m.Store = failingStore{}
	m.Buffers = buffer.NewManager(nil, nil)
	m.Producer = NewProducer(buffer.NewManager(nil, nil), frame.NewSampleSource(1, 0))
	defer m.stopAlarms(idleAlarm, beaconAlarm, scienceAlarm, rxWindowAlarm)
	m.Init(context.Background())
	require.Equal(t, Safe, m.State())
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("entersafe")
	require.NoError(t, err)
	require.Equal(t, EnterSafe, ev)
	_, err = ParseEvent("launch")
	require.Error(t, err)
	require.Equal(t, "none", NoEvent.String())
	require.Equal(t, "TurnOnRx", TurnOnRx.String())
}
