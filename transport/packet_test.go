package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opd-ai/gamevoice/limits"
)

// TestMessageSerialize tests the Message.Serialize method.
func TestMessageSerialize(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    []byte
		wantErr error
	}{
		{
			name: "voice data",
			msg:  Message{Kind: KindVoiceData, Payload: []byte{0xAA, 0xBB, 0xCC}},
			want: []byte{0x03, 0x00, 0xAA, 0xBB, 0xCC},
		},
		{
			name: "voice end",
			msg:  Message{Kind: KindVoiceEnd},
			want: []byte{},
		},
		{
			name:    "empty voice data",
			msg:     Message{Kind: KindVoiceData},
			wantErr: limits.ErrPacketEmpty,
		},
		{
			name:    "oversized voice data",
			msg:     Message{Kind: KindVoiceData, Payload: make([]byte, limits.MaxVoicePacket+1)},
			wantErr: limits.ErrPacketTooLarge,
		},
		{
			name:    "unknown kind",
			msg:     Message{Kind: Kind(9)},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Serialize()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Serialize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Serialize() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDecodeVoiceData tests length-prefix parsing.
func TestDecodeVoiceData(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		want    []byte
		wantErr error
	}{
		{"exact", []byte{0x02, 0x00, 1, 2}, []byte{1, 2}, nil},
		{"trailing bytes ignored", []byte{0x01, 0x00, 7, 8, 9}, []byte{7}, nil},
		{"no prefix", []byte{0x01}, nil, ErrTruncated},
		{"short body", []byte{0x04, 0x00, 1, 2}, nil, ErrTruncated},
		{"zero length", []byte{0x00, 0x00}, nil, limits.ErrPacketEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVoiceData(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeVoiceData() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeVoiceData() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMessageDelivery checks the fixed delivery class of voice messages.
func TestMessageDelivery(t *testing.T) {
	for _, kind := range []Kind{KindVoiceData, KindVoiceEnd} {
		msg := Message{Kind: kind}
		if msg.Reliability() != UnreliableSequenced {
			t.Errorf("%s reliability = %d, want UnreliableSequenced", kind, msg.Reliability())
		}
		if msg.Priority() != PriorityLow {
			t.Errorf("%s priority = %d, want PriorityLow", kind, msg.Priority())
		}
		if msg.OrderingChannel() != OrderingVoice {
			t.Errorf("%s ordering = %d, want OrderingVoice", kind, msg.OrderingChannel())
		}
	}
	if KindVoiceData.String() != "VOICE_DATA" || KindVoiceEnd.String() != "VOICE_END" {
		t.Errorf("unexpected kind names %q %q", KindVoiceData, KindVoiceEnd)
	}
}

// TestParseMessage verifies that ParseMessage reverses Serialize.
func TestParseMessage(t *testing.T) {
	original := Message{Kind: KindVoiceData, Payload: []byte{1, 2, 3, 4, 5}}
	body, err := original.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	parsed, err := ParseMessage(KindVoiceData, body)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Kind != original.Kind || !bytes.Equal(parsed.Payload, original.Payload) {
		t.Errorf("ParseMessage() = %+v, want %+v", parsed, original)
	}

	if _, err := ParseMessage(Kind(0), nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
