package codec

import (
	"errors"
	"math/bits"
)

// Disparity is the running disparity of the 8b10b line code.
type Disparity uint8

// Running disparity states.
const (
	NegDisparity Disparity = 0
	PosDisparity Disparity = 1
)

// Flip returns the opposite disparity.
func (d Disparity) Flip() Disparity {
	return d ^ 1
}

// String implements fmt.Stringer.
func (d Disparity) String() string {
	if d == PosDisparity {
		return "RD+"
	}
	return "RD-"
}

// SyncSymbol is the Encode input which emits the K.28.5 comma instead of a
// data byte.
const SyncSymbol = 0x100

// Comma symbols, bit 9 is line bit a, bit 0 is line bit j.
const (
	CommaNeg uint16 = 0x0FA
	CommaPos uint16 = 0x305

	symbolMask = 0x3ff
)

// ErrInvalidSymbol indicates a 10-bit value which is not a code word of the
// current disparity.
var ErrInvalidSymbol = errors.New("invalid 8b10b symbol")

// 5b/6b sub-block codes (abcdei) for RD- and RD+.
var code5b6b = [32][2]uint16{
	{0b100111, 0b011000}, {0b011101, 0b100010}, {0b101101, 0b010010}, {0b110001, 0b110001},
	{0b110101, 0b001010}, {0b101001, 0b101001}, {0b011001, 0b011001}, {0b111000, 0b000111},
	{0b111001, 0b000110}, {0b100101, 0b100101}, {0b010101, 0b010101}, {0b110100, 0b110100},
	{0b001101, 0b001101}, {0b101100, 0b101100}, {0b011100, 0b011100}, {0b010111, 0b101000},
	{0b011011, 0b100100}, {0b100011, 0b100011}, {0b010011, 0b010011}, {0b110010, 0b110010},
	{0b001011, 0b001011}, {0b101010, 0b101010}, {0b011010, 0b011010}, {0b111010, 0b000101},
	{0b110011, 0b001100}, {0b100110, 0b100110}, {0b010110, 0b010110}, {0b110110, 0b001001},
	{0b001110, 0b001110}, {0b101110, 0b010001}, {0b011110, 0b100001}, {0b101011, 0b010100},
}

// 3b/4b sub-block codes (fghj) for RD- and RD+, index 8 is D.x.A7.
var code3b4b = [9][2]uint16{
	{0b1011, 0b0100}, {0b1001, 0b1001}, {0b0101, 0b0101}, {0b1100, 0b0011},
	{0b1101, 0b0010}, {0b1010, 0b1010}, {0b0110, 0b0110}, {0b1110, 0b0001},
	{0b0111, 0b1000},
}

// encTab[rd][byte] holds the symbol in bits 0-9 and the disparity after
// the symbol in bit 10.
var (
	encTab [2][256]uint16
	decTab [2][1024]int16
)

func init() {
	initLineCode()
}

func nextDisparity(rd Disparity, code uint16, width int) Disparity {
	if ones := bits.OnesCount16(code); ones*2 != width {
		return rd.Flip()
	}
	return rd
}

func encodeByte(rd Disparity, c byte) (uint16, Disparity) {
	x, y := c&0x1f, c>>5
	six := code5b6b[x][rd]
	rd = nextDisparity(rd, six, 6)
	if y == 7 {
		if (rd == NegDisparity && (x == 17 || x == 18 || x == 20)) ||
			(rd == PosDisparity && (x == 11 || x == 13 || x == 14)) {
			y = 8
		}
	}
	four := code3b4b[y][rd]
	rd = nextDisparity(rd, four, 4)
	return six<<4 | four, rd
}

func initLineCode() {
	for rd := range decTab {
		for i := range decTab[rd] {
			decTab[rd][i] = -1
		}
	}
	for _, rd := range []Disparity{NegDisparity, PosDisparity} {
		for c := 0; c < 256; c++ {
			sym, next := encodeByte(rd, byte(c))
			encTab[rd][c] = sym | uint16(next)<<10
			decTab[rd][sym] = int16(c)
		}
	}
	decTab[NegDisparity][CommaNeg] = SyncSymbol
	decTab[PosDisparity][CommaPos] = SyncSymbol
}

// Encode encodes a data byte (0-255) or SyncSymbol with disparity rd, and
// returns the 10-bit symbol with the disparity to use for the next symbol.
func Encode(rd Disparity, c int) (uint16, Disparity) {
	if c == SyncSymbol {
		if rd == NegDisparity {
			return CommaNeg, rd.Flip()
		}
		return CommaPos, rd.Flip()
	}
	ent := encTab[rd&1][c&0xff]
	return ent & symbolMask, Disparity(ent>>10) & 1
}

// Decode is the inverse of Encode. It returns SyncSymbol for a comma.
func Decode(rd Disparity, sym uint16) (int, Disparity, error) {
	v := decTab[rd&1][sym&symbolMask]
	if v < 0 {
		return 0, rd, ErrInvalidSymbol
	}
	return int(v), nextDisparity(rd, sym&symbolMask, 10), nil
}

// LineEncoder keeps the running disparity across frames of a session.
type LineEncoder struct {
	RD Disparity
}

// Encode encodes one byte or SyncSymbol.
func (e *LineEncoder) Encode(c int) uint16 {
	var sym uint16
	sym, e.RD = Encode(e.RD, c)
	return sym
}
