// Package wire implements the part of the Minecraft protocol a gateway in
// front of a backend server needs: packet framing, the handshake packet and
// the login disconnect packet.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// MaxVarIntLen is the maximum encoded size of a VarInt.
	MaxVarIntLen = 5
	// MaxStringLength is the maximum length of a protocol string in characters.
	MaxStringLength = 32767
)

var (
	ErrVarIntTooBig     = errors.New("varint is too big")
	ErrNegativeLength   = errors.New("negative length")
	ErrStringTooLong    = errors.New("string is too long")
	ErrInvalidUTF8      = errors.New("string is not valid UTF-8")
	ErrTrailingData     = errors.New("trailing data after packet")
	ErrUnexpectedPacket = errors.New("unexpected packet")
)

// ReadVarInt reads a VarInt: a little-endian base 128 encoding of a 32-bit
// two's complement integer, at most 5 bytes long.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		value |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// AppendVarInt appends the VarInt encoding of v to b.
func AppendVarInt(b []byte, v int32) []byte {
	return binary.AppendUvarint(b, uint64(uint32(v)))
}

// VarIntSize returns the encoded size of v.
func VarIntSize(v int32) int {
	n := 1
	for u := uint32(v); u >= 0x80; u >>= 7 {
		n++
	}
	return n
}

// Stream reads and writes protocol data types over a packet payload.
type Stream struct {
	*bytes.Buffer
}

// NewStream creates a Stream over buf.
func NewStream(buf []byte) *Stream {
	return &Stream{bytes.NewBuffer(buf)}
}

func (s *Stream) ReadVarInt() (int32, error) {
	return ReadVarInt(s.Buffer)
}

func (s *Stream) WriteVarInt(v int32) {
	var buf [MaxVarIntLen]byte
	s.Write(AppendVarInt(buf[:0], v))
}

// ReadPrefixedString reads a VarInt length prefixed UTF-8 string of at most
// maxChars characters.
func (s *Stream) ReadPrefixedString(maxChars int) (string, error) {
	n, err := s.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", ErrNegativeLength
	}
	// A character takes up to 3 bytes in the modified UTF-8 Java writes.
	if int(n) > maxChars*3 {
		return "", fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
	}
	if int(n) > s.Len() {
		return "", io.ErrUnexpectedEOF
	}
	data := s.Next(int(n))
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	if utf8.RuneCount(data) > maxChars {
		return "", fmt.Errorf("%w: %d characters", ErrStringTooLong, utf8.RuneCount(data))
	}
	return string(data), nil
}

// WritePrefixedString writes str with a VarInt length prefix.
func (s *Stream) WritePrefixedString(str string) {
	s.WriteVarInt(int32(len(str)))
	s.Buffer.WriteString(str)
}

// ReadUShort reads a big-endian unsigned 16-bit integer.
func (s *Stream) ReadUShort() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(s.Buffer, buf[:]); err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUShort writes a big-endian unsigned 16-bit integer.
func (s *Stream) WriteUShort(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	s.Write(buf[:])
}
