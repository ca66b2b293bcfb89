package frame

// Sequence yields the frame types of one transmission sequence.
// The last frame of the sequence is flagged so the channel appends the
// trailing sync and the radio reports completion after it.
type Sequence struct {
	Name  string
	Types []Type

	pos int
}

// Next returns the next frame type. ok is false once the sequence is
// exhausted.
func (s *Sequence) Next() (t Type, last bool, ok bool) {
	if s.pos >= len(s.Types) {
		return 0, false, false
	}
	t = s.Types[s.pos]
	s.pos++
	return t, s.pos == len(s.Types), true
}

// Done tells whether all frames were produced.
func (s *Sequence) Done() bool {
	return s.pos >= len(s.Types)
}

// Reset rewinds the sequence.
func (s *Sequence) Reset() {
	s.pos = 0
}

// BeaconSequence is sent once per beacon period in the safe modes.
func BeaconSequence() *Sequence {
	return &Sequence{Name: "beacon", Types: []Type{SafeData1, SafeData2}}
}

// HealthSequence is the framing cycle in health mode.
func HealthSequence() *Sequence {
	return &Sequence{Name: "health", Types: []Type{RealtimeMinMax, RealtimeWOD, AllWOD, RealtimeWOD}}
}

// ScienceSequence is the framing cycle in science mode.
func ScienceSequence() *Sequence {
	return &Sequence{Name: "science", Types: []Type{Science, Science, RealtimeMinMax, Science}}
}
