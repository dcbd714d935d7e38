package transport

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
)

const (
	payloadTypeVoiceData uint8 = 96
	payloadTypeVoiceEnd  uint8 = 97
)

// packetizer stamps outgoing messages with RTP sequence numbers and
// timestamps for one source.
type packetizer struct {
	mu             sync.Mutex
	ssrc           uint32
	sequenceNumber uint16
	timestamp      uint32
	frameSamples   uint32
}

func newPacketizer(ssrc, clockRate uint32) *packetizer {
	return &packetizer{ssrc: ssrc, frameSamples: clockRate / 50}
}

// packetize wraps body in an RTP packet. VOICE_END sets the marker bit.
func (p *packetizer) packetize(kind Kind, body []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         kind == KindVoiceEnd,
			PayloadType:    payloadTypeVoiceData,
			SequenceNumber: p.sequenceNumber,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: body,
	}
	if kind == KindVoiceEnd {
		packet.PayloadType = payloadTypeVoiceEnd
	}

	data, err := packet.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}

	p.sequenceNumber++
	if kind == KindVoiceData {
		p.timestamp += p.frameSamples
	}
	return data, nil
}

// depacketize parses an RTP packet and returns the source, kind and body.
func depacketize(data []byte) (*rtp.Packet, Kind, error) {
	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}
	switch packet.PayloadType {
	case payloadTypeVoiceData:
		return packet, KindVoiceData, nil
	case payloadTypeVoiceEnd:
		return packet, KindVoiceEnd, nil
	default:
		return nil, 0, fmt.Errorf("%w: payload type %d", ErrUnknownKind, packet.PayloadType)
	}
}

// sequencer enforces unreliable-sequenced delivery: per source, only
// packets newer than the last accepted one pass.
type sequencer struct {
	mu   sync.Mutex
	last map[uint32]uint16
}

func newSequencer() *sequencer {
	return &sequencer{last: make(map[uint32]uint16)}
}

// restartGap is how far behind the last sequence a packet must be to be
// taken as a restarted sender rather than a late packet.
const restartGap = 1000

// accept reports whether seq is newer than the last sequence seen from
// ssrc, treating the 16-bit space as circular. A jump back by restartGap or
// more restarts the source's sequence.
func (s *sequencer) accept(ssrc uint32, seq uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.last[ssrc]
	if ok {
		diff := int16(seq - last)
		if diff <= 0 && diff > -restartGap {
			return false
		}
	}
	s.last[ssrc] = seq
	return true
}
