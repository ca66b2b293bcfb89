package msgs

import (
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/downlink.go/pkg/framework"
)

// CommandOK is the generic reply indicating success for commands.
type CommandOK struct {
}

// NewCommandOK creates a CommandOK.
func NewCommandOK() *CommandOK {
	return &CommandOK{}
}

// NewMessage implements Message.
func (m *CommandOK) NewMessage() fx.Message { return &CommandOK{} }

// TypeID implements SerializableMessage.
func (m *CommandOK) TypeID() uint32 { return CommandOKTypeID }

// Serializable implements SerializableMessage.
func (m *CommandOK) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandOK) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandOK) Reset() { *m = CommandOK{} }

// String implements proto.Message.
func (m *CommandOK) String() string { return proto.CompactTextString(m) }

// CommandErr is the generic message representing command error.
type CommandErr struct {
	Message string `protobuf:"bytes,1,opt,name=message,proto3" json:"message,omitempty"`
}

// NewCommandErr creates a CommandErr from an error.
func NewCommandErr(err error) *CommandErr {
	return NewCommandErrFromMsg(err.Error())
}

// NewCommandErrFromMsg creates a CommandErr.
func NewCommandErrFromMsg(message string) *CommandErr {
	return &CommandErr{Message: message}
}

// NewMessage implements Message.
func (m *CommandErr) NewMessage() fx.Message { return &CommandErr{} }

// TypeID implements SerializableMessage.
func (m *CommandErr) TypeID() uint32 { return CommandErrTypeID }

// Serializable implements SerializableMessage.
func (m *CommandErr) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *CommandErr) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandErr) Reset() { *m = CommandErr{} }

// String implements proto.Message.
func (m *CommandErr) String() string { return proto.CompactTextString(m) }

// Error implements error.
func (m *CommandErr) Error() string { return m.Message }

// DownlinkCommand raises an event in the downlink state machine.
type DownlinkCommand struct {
	Event string `protobuf:"bytes,1,opt,name=event,proto3" json:"event,omitempty"`
}

// NewMessage implements Message.
func (m *DownlinkCommand) NewMessage() fx.Message { return &DownlinkCommand{} }

// TypeID implements SerializableMessage.
func (m *DownlinkCommand) TypeID() uint32 { return DownlinkCommandTypeID }

// Serializable implements SerializableMessage.
func (m *DownlinkCommand) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DownlinkCommand) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DownlinkCommand) Reset() { *m = DownlinkCommand{} }

// String implements proto.Message.
func (m *DownlinkCommand) String() string { return proto.CompactTextString(m) }

// StatusQuery queries the downlink status.
type StatusQuery struct {
}

// NewMessage implements Message.
func (m *StatusQuery) NewMessage() fx.Message { return &StatusQuery{} }

// TypeID implements SerializableMessage.
func (m *StatusQuery) TypeID() uint32 { return StatusQueryTypeID }

// Serializable implements SerializableMessage.
func (m *StatusQuery) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *StatusQuery) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusQuery) Reset() { *m = StatusQuery{} }

// String implements proto.Message.
func (m *StatusQuery) String() string { return proto.CompactTextString(m) }

// StatusReply is the response for StatusQuery.
type StatusReply struct {
	Status *DownlinkStatus `protobuf:"bytes,1,opt,name=status,proto3" json:"status,omitempty"`
}

// NewMessage implements Message.
func (m *StatusReply) NewMessage() fx.Message { return &StatusReply{} }

// TypeID implements SerializableMessage.
func (m *StatusReply) TypeID() uint32 { return StatusReplyTypeID }

// Serializable implements SerializableMessage.
func (m *StatusReply) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *StatusReply) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusReply) Reset() { *m = StatusReply{} }

// String implements proto.Message.
func (m *StatusReply) String() string { return proto.CompactTextString(m) }

// DownlinkStatus is an Event message reflecting the downlink state.
type DownlinkStatus struct {
	Session     string `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Mode        string `protobuf:"bytes,2,opt,name=mode,proto3" json:"mode,omitempty"`
	State       string `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Event       string `protobuf:"bytes,4,opt,name=event,proto3" json:"event,omitempty"`
	Timestamp   int64  `protobuf:"varint,5,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Filled      uint64 `protobuf:"varint,6,opt,name=filled,proto3" json:"filled,omitempty"`
	Drained     uint64 `protobuf:"varint,7,opt,name=drained,proto3" json:"drained,omitempty"`
	Discarded   uint64 `protobuf:"varint,8,opt,name=discarded,proto3" json:"discarded,omitempty"`
	FillRefused uint64 `protobuf:"varint,9,opt,name=fill_refused,json=fillRefused,proto3" json:"fill_refused,omitempty"`
	Words       uint64 `protobuf:"varint,10,opt,name=words,proto3" json:"words,omitempty"`
}

// NewMessage implements Message.
func (m *DownlinkStatus) NewMessage() fx.Message { return &DownlinkStatus{} }

// TypeID implements SerializableMessage.
func (m *DownlinkStatus) TypeID() uint32 { return DownlinkStatusEventTypeID }

// Serializable implements SerializableMessage.
func (m *DownlinkStatus) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *DownlinkStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *DownlinkStatus) Reset() { *m = DownlinkStatus{} }

// String implements proto.Message.
func (m *DownlinkStatus) String() string { return proto.CompactTextString(m) }

// TypeID Groups
const (
	GroupCommand  uint32 = 0x00000000
	GroupDownlink uint32 = 0x00010000
)

// TypeIDs
const (
	CommandOKTypeID           uint32 = GroupCommand | TypeIDMaskReply | 0x0000
	CommandErrTypeID          uint32 = GroupCommand | TypeIDMaskReply | 0x0001
	DownlinkCommandTypeID     uint32 = GroupDownlink | 0x0000
	StatusQueryTypeID         uint32 = GroupDownlink | 0x0001
	StatusReplyTypeID         uint32 = StatusQueryTypeID | TypeIDMaskReply
	DownlinkStatusEventTypeID uint32 = GroupDownlink | TypeIDKindEvent | 0x0000
)

// MessageTypes are predefined mapping of type ID to messages.
var MessageTypes = map[uint32]SerializableMessage{
	CommandOKTypeID:           (*CommandOK)(nil),
	CommandErrTypeID:          (*CommandErr)(nil),
	DownlinkCommandTypeID:     (*DownlinkCommand)(nil),
	StatusQueryTypeID:         (*StatusQuery)(nil),
	StatusReplyTypeID:         (*StatusReply)(nil),
	DownlinkStatusEventTypeID: (*DownlinkStatus)(nil),
}
