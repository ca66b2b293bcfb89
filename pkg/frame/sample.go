package frame

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// SampleSource is a synthetic TelemetrySource. Collect takes a new sample;
// payloads carry the sample counter and kind so frames can be traced end
// to end on the ground.
type SampleSource struct {
	SpacecraftID uint8
	ResetCount   uint16

	lock    sync.Mutex
	started time.Time
	samples uint32
	now     func() time.Time
}

// NewSampleSource creates a SampleSource.
func NewSampleSource(id uint8, resets uint16) *SampleSource {
	s := &SampleSource{SpacecraftID: id, ResetCount: resets, now: time.Now}
	s.started = s.now()
	return s
}

// Collect takes a new telemetry sample.
func (s *SampleSource) Collect(ctx context.Context) {
	s.lock.Lock()
	s.samples++
	s.lock.Unlock()
}

// Samples returns the number of samples taken.
func (s *SampleSource) Samples() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.samples
}

// Header implements TelemetrySource.
func (s *SampleSource) Header() Header {
	return Header{
		SpacecraftID: s.SpacecraftID,
		ResetCount:   s.ResetCount,
		Uptime:       uint32(s.now().Sub(s.started) / time.Second),
	}
}

// Payload implements TelemetrySource.
func (s *SampleSource) Payload(kind PayloadKind, dst []byte) error {
	samples := s.Samples()
	for i := range dst {
		dst[i] = byte(kind) ^ byte(i)
	}
	if len(dst) >= 5 {
		dst[0] = byte(kind)
		binary.BigEndian.PutUint32(dst[1:5], samples)
	}
	return nil
}
