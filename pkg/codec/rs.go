package codec

// Reed-Solomon (255,223) over GF(256), CCSDS parameters in conventional
// (not dual) basis. Tables are generated once; the values must never change
// since the ground decoder is built from the same field.
const (
	rsSymSize = 8
	rsGFPoly  = 0x187
	rsFCR     = 112
	rsPrim    = 11

	// NN is the code word length in symbols.
	NN = 1<<rsSymSize - 1
	// NRoots is the number of parity bytes per code word.
	NRoots = 32
	// MaxDataPerCodeword is the largest data length of one code word.
	MaxDataPerCodeword = NN - NRoots

	a0 = NN // log of zero
)

var (
	alphaTo [NN + 1]byte
	indexOf [NN + 1]byte
	genPoly [NRoots + 1]byte // index form
)

func init() {
	initField()
}

func modnn(x int) int {
	for x >= NN {
		x -= NN
		x = (x >> rsSymSize) + (x & NN)
	}
	return x
}

func initField() {
	indexOf[0] = a0
	alphaTo[a0] = 0
	sr := 1
	for i := 0; i < NN; i++ {
		indexOf[sr] = byte(i)
		alphaTo[i] = byte(sr)
		sr <<= 1
		if sr&(1<<rsSymSize) != 0 {
			sr ^= rsGFPoly
		}
		sr &= NN
	}
	if sr != 1 {
		panic("codec: field generator polynomial is not primitive")
	}

	var poly [NRoots + 1]byte
	poly[0] = 1
	root := rsFCR * rsPrim
	for i := 0; i < NRoots; i, root = i+1, root+rsPrim {
		poly[i+1] = 1
		for j := i; j > 0; j-- {
			if poly[j] != 0 {
				poly[j] = poly[j-1] ^ alphaTo[modnn(int(indexOf[poly[j]])+root)]
			} else {
				poly[j] = poly[j-1]
			}
		}
		poly[0] = alphaTo[modnn(int(indexOf[poly[0]])+root)]
	}
	for i := range poly {
		genPoly[i] = indexOf[poly[i]]
	}
}

// Parity is the running parity of one code word.
type Parity [NRoots]byte

// Reset clears the parity for a new code word.
func (p *Parity) Reset() {
	*p = Parity{}
}

// Update feeds one data byte through the encoder shift register.
func (p *Parity) Update(c byte) {
	feedback := int(indexOf[c^p[0]])
	if feedback != a0 {
		for j := 1; j < NRoots; j++ {
			p[j] ^= alphaTo[modnn(feedback+int(genPoly[NRoots-j]))]
		}
	}
	copy(p[:NRoots-1], p[1:])
	if feedback != a0 {
		p[NRoots-1] = alphaTo[modnn(feedback+int(genPoly[0]))]
	} else {
		p[NRoots-1] = 0
	}
}

// Syndromes evaluates a received code word (data followed by parity) at
// the roots of the generator. All zero means the code word is consistent.
// Shortened code words are accepted as is.
func Syndromes(codeword []byte) [NRoots]byte {
	var s [NRoots]byte
	if len(codeword) == 0 {
		return s
	}
	for i := range s {
		s[i] = codeword[0]
	}
	for _, c := range codeword[1:] {
		for i := range s {
			if s[i] == 0 {
				s[i] = c
			} else {
				s[i] = c ^ alphaTo[modnn(int(indexOf[s[i]])+(rsFCR+i)*rsPrim)]
			}
		}
	}
	return s
}

// Lanes is the number of interleaved code words per frame.
const Lanes = 3

// Interleaver stripes bytes round robin over Lanes parity accumulators so a
// burst of channel errors is spread over independently correctable code
// words.
type Interleaver struct {
	lanes [Lanes]Parity
	n     int
}

// Reset starts a new frame.
func (iv *Interleaver) Reset() {
	*iv = Interleaver{}
}

// Update feeds the next frame byte to lane (byte index mod Lanes).
func (iv *Interleaver) Update(c byte) {
	iv.lanes[iv.n%Lanes].Update(c)
	iv.n++
}

// Count returns the number of bytes fed since Reset.
func (iv *Interleaver) Count() int {
	return iv.n
}

// Lane returns the parity of one lane.
func (iv *Interleaver) Lane(n int) *Parity {
	return &iv.lanes[n]
}
