// Package symbol packs 10-bit line symbols into 32-bit words.
//
// Symbol i lives in word i/3 at bit offset (i%3)*10; the top two bits of
// every word are zero. The layout is shared with the ground decoder.
package symbol

// Bits is the width of one symbol.
const Bits = 10

// PerWord is the number of symbols packed into one word.
const PerWord = 3

const mask = 1<<Bits - 1

// Buffer is a packed symbol sequence.
type Buffer []uint32

// WordsFor returns the number of words holding n symbols.
func WordsFor(n int) int {
	return (n + PerWord - 1) / PerWord
}

// New allocates a Buffer for up to n symbols.
func New(n int) Buffer {
	return make(Buffer, WordsFor(n))
}

// Cap returns the number of symbols the buffer can hold.
func (b Buffer) Cap() int {
	return len(b) * PerWord
}

// PutSymbol stores symbol i. Symbols must be written in increasing index
// order: the first symbol of a word clears the whole word.
func PutSymbol(b Buffer, i int, v uint16) {
	w, slot := i/PerWord, i%PerWord
	if slot == 0 {
		b[w] = 0
	}
	b[w] |= uint32(v&mask) << uint(slot*Bits)
}

// GetSymbol extracts symbol i.
func GetSymbol(b Buffer, i int) uint16 {
	return uint16(b[i/PerWord]>>uint((i%PerWord)*Bits)) & mask
}

// Writer appends symbols to a Buffer in order.
type Writer struct {
	Buf Buffer
	N   int
}

// Put appends one symbol.
func (w *Writer) Put(v uint16) {
	PutSymbol(w.Buf, w.N, v)
	w.N++
}

// Words returns the number of words used so far.
func (w *Writer) Words() int {
	return WordsFor(w.N)
}
