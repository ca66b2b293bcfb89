// Package frame assembles logical downlink frames: a header followed by
// ordered payload slots and filler, laid out by frame type.
package frame

import (
	"fmt"
)

// Type selects the frame layout.
type Type uint8

// Frame types.
const (
	RealtimeMinMax Type = iota + 1
	RealtimeWOD
	AllWOD
	Science
	SafeData1
	SafeData2
)

var typeNames = map[Type]string{
	RealtimeMinMax: "RealtimeMinMax",
	RealtimeWOD:    "RealtimeWOD",
	AllWOD:         "AllWOD",
	Science:        "Science",
	SafeData1:      "SafeData1",
	SafeData2:      "SafeData2",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// PayloadKind identifies the content of a payload slot.
type PayloadKind uint8

// Payload kinds.
const (
	RealtimeHealth PayloadKind = iota + 1
	MaxValues
	MinValues
	WODHealth
	WODScience
	RadiationData
	SafeHealth
	Diagnostics
)

// PayloadSize is the fixed size in bytes of each payload kind.
var PayloadSize = map[PayloadKind]int{
	RealtimeHealth: 58,
	MaxValues:      58,
	MinValues:      58,
	WODHealth:      64,
	WODScience:     78,
	RadiationData:  78,
	SafeHealth:     58,
	Diagnostics:    40,
}

// Frame geometry.
const (
	HeaderLen = 8
	DataLen   = 600
	MaxSlots  = 8
	Filler    = 0x00
)

// Layouts maps a frame type to its ordered payload slots.
var Layouts = map[Type][]PayloadKind{
	RealtimeMinMax: {RealtimeHealth, MaxValues, MinValues, RadiationData, RadiationData, RadiationData, Diagnostics},
	RealtimeWOD:    {RealtimeHealth, WODHealth, WODHealth, WODHealth, WODScience, WODScience, WODScience},
	AllWOD:         {WODHealth, WODHealth, WODHealth, WODHealth, WODScience, WODScience, WODScience, WODScience},
	Science:        {RealtimeHealth, RadiationData, RadiationData, RadiationData, RadiationData, RadiationData, RadiationData},
	SafeData1:      {SafeHealth, Diagnostics, WODHealth, WODHealth, WODHealth, WODHealth},
	SafeData2:      {SafeHealth, WODScience, WODScience, WODScience, WODScience},
}

// CheckLayouts verifies every layout fits into a frame.
func CheckLayouts() error {
	for t, slots := range Layouts {
		if len(slots) > MaxSlots {
			return fmt.Errorf("frame %v: %d slots exceeds %d", t, len(slots), MaxSlots)
		}
		size := HeaderLen
		for _, kind := range slots {
			n, ok := PayloadSize[kind]
			if !ok {
				return fmt.Errorf("frame %v: unknown payload kind %d", t, kind)
			}
			size += n
		}
		if size > DataLen {
			return fmt.Errorf("frame %v: %d bytes exceeds %d", t, size, DataLen)
		}
	}
	return nil
}

func init() {
	if err := CheckLayouts(); err != nil {
		panic(err)
	}
}

// Header is the fixed frame header.
type Header struct {
	SpacecraftID uint8
	ResetCount   uint16
	Uptime       uint32
	Type         Type
	Mode         uint8
}

// Put encodes the header into b, which must hold HeaderLen bytes.
func (h Header) Put(b []byte) {
	_ = b[HeaderLen-1]
	b[0] = h.SpacecraftID
	b[1], b[2] = byte(h.ResetCount>>8), byte(h.ResetCount)
	b[3], b[4], b[5], b[6] = byte(h.Uptime>>24), byte(h.Uptime>>16), byte(h.Uptime>>8), byte(h.Uptime)
	b[7] = byte(h.Type)<<4 | h.Mode&0x0f
}

// ParseHeader decodes a header.
func ParseHeader(b []byte) Header {
	_ = b[HeaderLen-1]
	return Header{
		SpacecraftID: b[0],
		ResetCount:   uint16(b[1])<<8 | uint16(b[2]),
		Uptime:       uint32(b[3])<<24 | uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6]),
		Type:         Type(b[7] >> 4),
		Mode:         b[7] & 0x0f,
	}
}
