package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxVoicePacket is the largest encoded voice frame (1276 bytes).
	MaxVoicePacket = 1276

	// MaxFrameSamples is the largest decoded frame: 20ms of stereo audio at
	// 48kHz.
	MaxFrameSamples = (48000 / 50) * 2

	// DefaultFrameCount is the number of 20ms frames held by the capture
	// buffer, about two seconds of audio.
	DefaultFrameCount = 100

	// SealNonceSize is the size of the nonce prepended to a sealed payload.
	SealNonceSize = 24

	// SealOverhead is the Poly1305 tag added by secretbox.Seal.
	SealOverhead = 16 // golang.org/x/crypto/nacl/secretbox.Overhead

	// LengthPrefixSize is the size of the little-endian length in front of
	// VOICE_DATA payloads.
	LengthPrefixSize = 2

	// MaxSealedVoicePacket is a length-prefixed MaxVoicePacket after sealing.
	MaxSealedVoicePacket = LengthPrefixSize + MaxVoicePacket + SealNonceSize + SealOverhead

	// MaxDatagram bounds the UDP read buffer.
	MaxDatagram = 2048
)

var (
	// ErrPacketEmpty indicates an empty packet was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooLarge indicates a packet exceeds the maximum size
	ErrPacketTooLarge = errors.New("packet too large")
)

// ValidatePacketSize validates a packet against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePacketSize(packet []byte, maxSize int) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(packet), maxSize)
	}
	return nil
}

// ValidateVoicePacket validates an encoded voice frame against MaxVoicePacket.
func ValidateVoicePacket(packet []byte) error {
	return ValidatePacketSize(packet, MaxVoicePacket)
}

// ValidateSealedPacket validates a sealed payload against MaxSealedVoicePacket.
func ValidateSealedPacket(packet []byte) error {
	if len(packet) < SealNonceSize+SealOverhead {
		return fmt.Errorf("%w: sealed size %d below overhead %d", ErrPacketEmpty, len(packet), SealNonceSize+SealOverhead)
	}
	if len(packet) > MaxSealedVoicePacket {
		return fmt.Errorf("%w: sealed size %d exceeds limit %d", ErrPacketTooLarge, len(packet), MaxSealedVoicePacket)
	}
	return nil
}
