package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// Frame markers. Header and tail values are fixed per frame kind; the host
// parses by fixed offsets, payload bytes are never escaped.
const (
	HeaderReset      = 0x00
	TailReset        = 0x0F
	HeaderResistance = 0x0A
	TailResistance   = 0xFF
	HeaderTest       = 0x11
	TailTest         = 0x0F
)

// Frame sizes including header and tail.
const (
	ResetSize      = 1 + 1 + 1
	ResistanceSize = 1 + 32/8 + 16/8 + 1
	TestSize       = 1 + 32/8 + 1
)

// MaxFraction is the largest fractional part carried by a resistance frame
// (three decimal digits).
const MaxFraction = 999

var (
	ErrShortFrame = errors.New("short frame")
	ErrBadHeader  = errors.New("unknown frame header")
	ErrBadTail    = errors.New("bad frame tail")
)

// Kind identifies a binary frame type.
type Kind uint8

const (
	KindReset Kind = iota
	KindResistance
	KindTest
)

func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindResistance:
		return "resistance"
	case KindTest:
		return "test"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Size returns the encoded length of a frame of kind k.
func (k Kind) Size() int {
	switch k {
	case KindReset:
		return ResetSize
	case KindResistance:
		return ResistanceSize
	case KindTest:
		return TestSize
	default:
		return 0
	}
}

// Tail returns the tail marker expected for kind k.
func (k Kind) Tail() byte {
	switch k {
	case KindReset:
		return TailReset
	case KindResistance:
		return TailResistance
	default:
		return TailTest
	}
}

// KindOf maps a header byte to its frame kind.
func KindOf(header byte) (Kind, bool) {
	switch header {
	case HeaderReset:
		return KindReset, true
	case HeaderResistance:
		return KindResistance, true
	case HeaderTest:
		return KindTest, true
	default:
		return 0, false
	}
}

// Frame is a decoded binary frame. Only the fields of its Kind are set.
type Frame struct {
	Kind       Kind
	SampleRate uint8   // reset
	Integer    uint32  // resistance
	Fraction   uint16  // resistance, 0..999
	Value      float32 // test
}

// Resistance returns integer + fraction/1000 for a resistance frame.
func (f Frame) Resistance() float64 {
	return float64(f.Integer) + float64(f.Fraction)/1000
}

// AppendReset appends a reset-info frame carrying the sampling rate in Hz.
func AppendReset(dst []byte, sampleRate uint8) []byte {
	return append(dst, HeaderReset, sampleRate, TailReset)
}

// AppendResistance appends a resistance frame. Both parts are big-endian.
func AppendResistance(dst []byte, integer uint32, fraction uint16) []byte {
	dst = append(dst, HeaderResistance)
	dst = binary.BigEndian.AppendUint32(dst, integer)
	dst = binary.BigEndian.AppendUint16(dst, fraction)
	return append(dst, TailResistance)
}

// AppendTest appends a diagnostic frame holding the raw IEEE-754 bit
// pattern of v in little-endian memory order.
func AppendTest(dst []byte, v float32) []byte {
	dst = append(dst, HeaderTest)
	dst = binary.LittleEndian.AppendUint32(dst, math32.Float32bits(v))
	return append(dst, TailTest)
}

// Encode appends the wire form of f to dst.
func Encode(dst []byte, f Frame) ([]byte, error) {
	switch f.Kind {
	case KindReset:
		return AppendReset(dst, f.SampleRate), nil
	case KindResistance:
		if f.Fraction > MaxFraction {
			return dst, fmt.Errorf("fraction %d out of range", f.Fraction)
		}
		return AppendResistance(dst, f.Integer, f.Fraction), nil
	case KindTest:
		return AppendTest(dst, f.Value), nil
	default:
		return dst, fmt.Errorf("encode %v: %w", f.Kind, ErrBadHeader)
	}
}

// Decode parses exactly one frame from the start of b and returns it with
// the number of bytes consumed.
func Decode(b []byte) (Frame, int, error) {
	if len(b) == 0 {
		return Frame{}, 0, ErrShortFrame
	}
	kind, ok := KindOf(b[0])
	if !ok {
		return Frame{}, 0, fmt.Errorf("header 0x%02X: %w", b[0], ErrBadHeader)
	}
	size := kind.Size()
	if len(b) < size {
		return Frame{}, 0, ErrShortFrame
	}
	if b[size-1] != kind.Tail() {
		return Frame{}, 0, fmt.Errorf("%v tail 0x%02X: %w", kind, b[size-1], ErrBadTail)
	}

	f := Frame{Kind: kind}
	switch kind {
	case KindReset:
		f.SampleRate = b[1]
	case KindResistance:
		f.Integer = binary.BigEndian.Uint32(b[1:5])
		f.Fraction = binary.BigEndian.Uint16(b[5:7])
	case KindTest:
		f.Value = math32.Float32frombits(binary.LittleEndian.Uint32(b[1:5]))
	}
	return f, size, nil
}
