package wire

import (
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest packet accepted, the largest length a 3 byte
// VarInt can hold (2 MiB - 1).
const MaxFrameSize = 1<<21 - 1

// LegacyPing is the first byte of a pre-Netty server list ping. Such
// connections never carry a forwarding handshake.
const LegacyPing = 0xFE

const (
	HandshakePacketID       = 0x00
	LoginDisconnectPacketID = 0x00
)

var (
	ErrFrameTooLarge = errors.New("frame is too large")
	ErrEmptyFrame    = errors.New("empty frame")
)

// Reader is what ReadFrame reads from, typically a *bufio.Reader.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ReadFrame reads one length prefixed packet and returns its payload: the
// packet id followed by the packet data.
func ReadFrame(r Reader) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	switch {
	case n < 0:
		return nil, ErrNegativeLength
	case n == 0:
		return nil, ErrEmptyFrame
	case n > MaxFrameSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// AppendFrame appends payload with its length prefix to b.
func AppendFrame(b []byte, payload []byte) []byte {
	b = AppendVarInt(b, int32(len(payload)))
	return append(b, payload...)
}

// WriteFrame writes payload with its length prefix to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	_, err := w.Write(AppendFrame(make([]byte, 0, len(payload)+MaxVarIntLen), payload))
	return err
}

// Intent is the state a client asks for in its handshake.
type Intent int32

const (
	IntentStatus   Intent = 1
	IntentLogin    Intent = 2
	IntentTransfer Intent = 3
)

func (i Intent) String() string {
	switch i {
	case IntentStatus:
		return "status"
	case IntentLogin:
		return "login"
	case IntentTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("intent(%d)", int32(i))
	}
}

// Handshake is the first packet of every connection. With IP forwarding the
// proxy puts the whole forwarding handshake into ServerAddress.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	Intent          Intent
}

// ParseHandshake parses a handshake packet payload.
func ParseHandshake(payload []byte) (Handshake, error) {
	s := NewStream(payload)
	id, err := s.ReadVarInt()
	if err != nil {
		return Handshake{}, fmt.Errorf("packet id: %w", err)
	}
	if id != HandshakePacketID {
		return Handshake{}, fmt.Errorf("%w: 0x%02x", ErrUnexpectedPacket, id)
	}
	var h Handshake
	if h.ProtocolVersion, err = s.ReadVarInt(); err != nil {
		return Handshake{}, fmt.Errorf("protocol version: %w", err)
	}
	if h.ServerAddress, err = s.ReadPrefixedString(MaxStringLength); err != nil {
		return Handshake{}, fmt.Errorf("server address: %w", err)
	}
	if h.ServerPort, err = s.ReadUShort(); err != nil {
		return Handshake{}, fmt.Errorf("server port: %w", err)
	}
	intent, err := s.ReadVarInt()
	if err != nil {
		return Handshake{}, fmt.Errorf("intent: %w", err)
	}
	h.Intent = Intent(intent)
	if s.Len() > 0 {
		return Handshake{}, ErrTrailingData
	}
	return h, nil
}

// Payload encodes h as a packet payload.
func (h Handshake) Payload() []byte {
	s := NewStream(make([]byte, 0, len(h.ServerAddress)+16))
	s.WriteVarInt(HandshakePacketID)
	s.WriteVarInt(h.ProtocolVersion)
	s.WritePrefixedString(h.ServerAddress)
	s.WriteUShort(h.ServerPort)
	s.WriteVarInt(int32(h.Intent))
	return s.Bytes()
}

// LoginDisconnect returns the payload of a login state disconnect packet.
// reason is a JSON chat component.
func LoginDisconnect(reason string) []byte {
	s := NewStream(make([]byte, 0, len(reason)+8))
	s.WriteVarInt(LoginDisconnectPacketID)
	s.WritePrefixedString(reason)
	return s.Bytes()
}

// ParseLoginDisconnect returns the JSON chat component of a login state
// disconnect packet.
func ParseLoginDisconnect(payload []byte) (string, error) {
	s := NewStream(payload)
	id, err := s.ReadVarInt()
	if err != nil {
		return "", fmt.Errorf("packet id: %w", err)
	}
	if id != LoginDisconnectPacketID {
		return "", fmt.Errorf("%w: 0x%02x", ErrUnexpectedPacket, id)
	}
	reason, err := s.ReadPrefixedString(MaxStringLength * 8)
	if err != nil {
		return "", fmt.Errorf("reason: %w", err)
	}
	return reason, nil
}
