package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// Magic marks the start of every frame on the wire.
	Magic uint32 = 0x66AABB99
	// HeaderLen is magic(4) + length(4).
	HeaderLen = 8
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

var magicBytes = [4]byte{0x66, 0xAA, 0xBB, 0x99}

// Header is the fixed wire header.
type Header struct {
	Magic  uint32
	Length uint32
}

// Valid reports whether the header carries the protocol magic.
func (h Header) Valid() bool {
	return h.Magic == Magic
}

// Limits constrains how large an announced payload may be before the
// reader treats the header as corrupt.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 10 * 1024 * 1024,
	}
}

// Encode returns magic || length || payload.
func Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

func EncodeString(s string) ([]byte, error) {
	return Encode([]byte(s))
}

// WriteFrame encodes payload and writes it with a single Write call so
// concurrent writers serialized above this layer never interleave a frame.
func WriteFrame(w io.Writer, payload []byte) error {
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// DecodeHeader parses the first HeaderLen bytes of b. It does not consume b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Magic:  binary.BigEndian.Uint32(b[0:4]),
		Length: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// DecodePayload returns b as UTF-8 text, falling back to a byte-preserving
// Latin-1 decoding when b is not valid UTF-8.
func DecodePayload(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
