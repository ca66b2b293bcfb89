package link

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/downlink.go/pkg/downlink"
	fx "github.com/robotalks/downlink.go/pkg/framework"
	"github.com/robotalks/downlink.go/pkg/msgs"
)

// Commander is the part of the downlink Machine driven over the link.
type Commander interface {
	PostCommand(ctx context.Context, ev downlink.Event) error
	Mode() downlink.Mode
	State() downlink.State
}

// StatusFunc adds counters to an outgoing status.
type StatusFunc func(*msgs.DownlinkStatus)

// EventQueueDepth is the number of status events which may be pending.
const EventQueueDepth = 8

type statusMsg struct {
	status downlink.Status
}

func (m *statusMsg) NewMessage() fx.Message { return &statusMsg{} }

// Endpoint serves commands on the spacecraft side and publishes status
// events. It implements downlink.StateNotifier.
type Endpoint struct {
	Commander Commander
	Session   string
	Stats     StatusFunc

	pipe Pipe
	task *fx.Task
}

// NewEndpoint creates an Endpoint with a fresh session ID.
func NewEndpoint(rw PacketReadWriter, cmd Commander) *Endpoint {
	e := &Endpoint{
		Commander: cmd,
		Session:   uuid.New().String(),
		task:      fx.NewTask("link", EventQueueDepth),
	}
	e.task.Handler = fx.HandleMessageFunc(e.handleStatus)
	e.pipe.ReadWriter = rw
	e.pipe.Handler = msgs.HandleTypedMsgFunc(e.handleTypedMsg)
	return e
}

// Name implements Named.
func (e *Endpoint) Name() string {
	return "link"
}

// Run implements Runnable.
func (e *Endpoint) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.task.Run(ctx)
	return e.pipe.Run(ctx)
}

// SendEvent sends an event message.
func (e *Endpoint) SendEvent(msg fx.Message) error {
	return e.pipe.SendEventMsg(msg)
}

// StateChanged implements downlink.StateNotifier. The event is sent from
// the endpoint's own task so the caller never blocks on the transport.
func (e *Endpoint) StateChanged(st downlink.Status) {
	if err := e.task.Post(&statusMsg{status: st}); err != nil {
		glog.Warningf("link: status %v dropped: %v", st, err)
	}
}

// Status builds the current status.
func (e *Endpoint) Status(ev downlink.Event) *msgs.DownlinkStatus {
	return e.status(downlink.Status{
		State: e.Commander.State(),
		Mode:  e.Commander.Mode(),
		Event: ev,
	})
}

func (e *Endpoint) status(st downlink.Status) *msgs.DownlinkStatus {
	s := &msgs.DownlinkStatus{
		Session:   e.Session,
		Mode:      st.Mode.String(),
		State:     st.State.String(),
		Event:     st.Event.String(),
		Timestamp: time.Now().UnixNano(),
	}
	if e.Stats != nil {
		e.Stats(s)
	}
	return s
}

func (e *Endpoint) handleStatus(ctx context.Context, msg fx.Message) {
	m, ok := msg.(*statusMsg)
	if !ok {
		return
	}
	if err := e.SendEvent(e.status(m.status)); err != nil {
		glog.Errorf("link: send status: %v", err)
	}
}

func (e *Endpoint) handleTypedMsg(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	if !typed.IsCommand() || typed.IsReply() {
		return nil
	}
	reply := e.execute(ctx, msg)
	return e.pipe.SendCommandMsg(reply, typed.Sequence)
}

func (e *Endpoint) execute(ctx context.Context, msg fx.Message) fx.Message {
	switch m := msg.(type) {
	case *msgs.DownlinkCommand:
		ev, err := downlink.ParseEvent(m.Event)
		if err != nil {
			return msgs.NewCommandErr(err)
		}
		glog.Infof("link: command %v", ev)
		if err := e.Commander.PostCommand(ctx, ev); err != nil {
			return msgs.NewCommandErr(err)
		}
		return msgs.NewCommandOK()
	case *msgs.StatusQuery:
		return &msgs.StatusReply{Status: e.Status(downlink.NoEvent)}
	}
	return msgs.NewCommandErr(msgs.ErrUnsupportedCommand)
}

// NotifierMux fans a status out to several notifiers.
type NotifierMux []downlink.StateNotifier

// StateChanged implements downlink.StateNotifier.
func (m NotifierMux) StateChanged(st downlink.Status) {
	for _, n := range m {
		n.StateChanged(st)
	}
}
