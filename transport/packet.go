package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/gamevoice/limits"
)

// Kind identifies a voice message.
type Kind byte

const (
	// KindVoiceData carries one encoded frame.
	KindVoiceData Kind = iota + 1
	// KindVoiceEnd marks the end of a talk spurt.
	KindVoiceEnd
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVoiceData:
		return "VOICE_DATA"
	case KindVoiceEnd:
		return "VOICE_END"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Reliability describes the delivery guarantee requested for a message.
type Reliability int

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
)

// Priority orders outgoing traffic.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// OrderingChannel separates independently sequenced streams.
type OrderingChannel int

const (
	OrderingDefault OrderingChannel = iota
	OrderingVoice
)

// Message is one voice message. Payload holds the encoded frame for
// KindVoiceData and is empty for KindVoiceEnd.
type Message struct {
	Kind    Kind
	Payload []byte
}

// Reliability returns the delivery guarantee of the message.
func (m Message) Reliability() Reliability { return UnreliableSequenced }

// Priority returns the send priority of the message.
func (m Message) Priority() Priority { return PriorityLow }

// OrderingChannel returns the channel the message is sequenced on.
func (m Message) OrderingChannel() OrderingChannel { return OrderingVoice }

var (
	// ErrUnknownKind indicates a message kind this package does not handle.
	ErrUnknownKind = errors.New("unknown voice message kind")

	// ErrTruncated indicates a VOICE_DATA body shorter than its length prefix.
	ErrTruncated = errors.New("truncated voice data")
)

// Serialize returns the wire body of the message: a u16 little-endian
// length followed by the frame for VOICE_DATA, nothing for VOICE_END.
func (m Message) Serialize() ([]byte, error) {
	switch m.Kind {
	case KindVoiceData:
		return EncodeVoiceData(m.Payload)
	case KindVoiceEnd:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
}

// ParseMessage reverses Serialize.
func ParseMessage(kind Kind, body []byte) (Message, error) {
	switch kind {
	case KindVoiceData:
		frame, err := DecodeVoiceData(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindVoiceData, Payload: frame}, nil
	case KindVoiceEnd:
		return Message{Kind: KindVoiceEnd}, nil
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// EncodeVoiceData prefixes frame with its u16 little-endian length.
func EncodeVoiceData(frame []byte) ([]byte, error) {
	if err := limits.ValidateVoicePacket(frame); err != nil {
		return nil, err
	}
	out := make([]byte, limits.LengthPrefixSize+len(frame))
	binary.LittleEndian.PutUint16(out, uint16(len(frame)))
	copy(out[limits.LengthPrefixSize:], frame)
	return out, nil
}

// DecodeVoiceData returns the frame carried by a length-prefixed body.
// Trailing bytes after the frame are ignored.
func DecodeVoiceData(body []byte) ([]byte, error) {
	if len(body) < limits.LengthPrefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(body))
	}
	n := int(binary.LittleEndian.Uint16(body))
	if len(body)-limits.LengthPrefixSize < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, len(body)-limits.LengthPrefixSize)
	}
	frame := make([]byte, n)
	copy(frame, body[limits.LengthPrefixSize:])
	if err := limits.ValidateVoicePacket(frame); err != nil {
		return nil, err
	}
	return frame, nil
}
