package frame

import (
	"fmt"

	"github.com/golang/glog"
)

// TelemetrySource provides the content of frames.
type TelemetrySource interface {
	// Header returns the header fields which are not derived from the
	// frame itself (spacecraft id, reset count, uptime).
	Header() Header
	// Payload fills dst, which is exactly PayloadSize[kind] bytes.
	Payload(kind PayloadKind, dst []byte) error
}

// Assembler builds frames into a reusable buffer.
type Assembler struct {
	Source TelemetrySource

	buf [DataLen]byte
}

// NewAssembler creates an Assembler.
func NewAssembler(src TelemetrySource) *Assembler {
	return &Assembler{Source: src}
}

// Build assembles a frame of type t. The returned slice is DataLen bytes
// and stays valid until the next Build.
//
// A payload which the source fails to provide is transmitted as filler so
// the frame keeps its layout.
func (a *Assembler) Build(t Type, mode uint8) ([]byte, error) {
	slots, ok := Layouts[t]
	if !ok {
		return nil, fmt.Errorf("unknown frame type %v", t)
	}
	hdr := a.Source.Header()
	hdr.Type, hdr.Mode = t, mode
	hdr.Put(a.buf[:HeaderLen])

	off := HeaderLen
	for n, kind := range slots {
		size := PayloadSize[kind]
		dst := a.buf[off : off+size]
		if err := a.Source.Payload(kind, dst); err != nil {
			glog.Warningf("frame %v slot %d: payload %d unavailable: %v", t, n, kind, err)
			fill(dst)
		}
		off += size
	}
	fill(a.buf[off:])
	return a.buf[:], nil
}

func fill(b []byte) {
	for i := range b {
		b[i] = Filler
	}
}
