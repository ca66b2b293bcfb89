// Package codec implements the downlink channel coding: interleaved
// Reed-Solomon parity, CRC-32 and the 8b10b line code.
package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/robotalks/downlink.go/pkg/symbol"
)

// CRCSize is the size of the frame CRC in bytes.
const CRCSize = 4

// ParitySymbols is the number of parity symbols appended to every frame.
const ParitySymbols = NRoots * Lanes

// MaxDataLen is the largest frame (without CRC) the interleaved code words
// can protect.
const MaxDataLen = MaxDataPerCodeword*Lanes - CRCSize

var (
	// ErrFrameTooLarge indicates the frame exceeds MaxDataLen.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrBufferTooSmall indicates the symbol buffer cannot hold the frame.
	ErrBufferTooSmall = errors.New("symbol buffer too small")
)

// SymbolsFor returns the number of symbols of an encoded frame with
// dataLen data bytes.
func SymbolsFor(dataLen int, leadingSync, trailingSync bool) int {
	n := dataLen + CRCSize + ParitySymbols
	if leadingSync {
		n++
	}
	if trailingSync {
		n++
	}
	return n
}

// FrameCRC computes the frame CRC (IEEE, reflected, init and final XOR
// 0xFFFFFFFF) in transmission order.
func FrameCRC(data []byte) [CRCSize]byte {
	var b [CRCSize]byte
	binary.BigEndian.PutUint32(b[:], crc32.ChecksumIEEE(data))
	return b
}

// Encoder runs the per-frame coding pipeline. The line disparity persists
// across frames; the RS parity is reset for every frame.
type Encoder struct {
	LeadingSync bool

	line LineEncoder
	rs   Interleaver
}

// NewEncoder creates an Encoder which emits a leading sync on every frame.
func NewEncoder() *Encoder {
	return &Encoder{LeadingSync: true}
}

// Disparity returns the current running disparity.
func (e *Encoder) Disparity() Disparity {
	return e.line.RD
}

// EncodeFrame encodes data into dst and returns the number of symbols
// written. last appends the trailing sync which ends a sequence.
func (e *Encoder) EncodeFrame(dst symbol.Buffer, data []byte, last bool) (int, error) {
	if len(data) > MaxDataLen {
		return 0, ErrFrameTooLarge
	}
	if SymbolsFor(len(data), e.LeadingSync, last) > dst.Cap() {
		return 0, ErrBufferTooSmall
	}
	w := symbol.Writer{Buf: dst}
	e.rs.Reset()
	if e.LeadingSync {
		w.Put(e.line.Encode(SyncSymbol))
	}
	for _, c := range data {
		e.putData(&w, c)
	}
	crc := FrameCRC(data)
	for _, c := range crc {
		e.putData(&w, c)
	}
	for i := 0; i < NRoots; i++ {
		for lane := 0; lane < Lanes; lane++ {
			w.Put(e.line.Encode(int(e.rs.Lane(lane)[i])))
		}
	}
	if last {
		w.Put(e.line.Encode(SyncSymbol))
	}
	return w.N, nil
}

func (e *Encoder) putData(w *symbol.Writer, c byte) {
	e.rs.Update(c)
	w.Put(e.line.Encode(int(c)))
}
