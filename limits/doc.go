// Package limits provides centralized size constants and validation functions
// for voice packets. Every component that produces or consumes encoded voice
// enforces the same bounds through this package.
//
// # Size Hierarchy
//
//   - MaxVoicePacket (1276 bytes): the largest encoded voice frame a client
//     will transmit or accept. This is the largest packet a speech encoder can
//     produce for one 20ms frame.
//
//   - MaxSealedVoicePacket: a length-prefixed MaxVoicePacket plus the
//     secretbox nonce and MAC carried when a session key is configured.
//
//   - MaxDatagram: the largest UDP datagram the transport will read, leaving
//     room for the RTP header in front of a sealed payload.
//
// # Validation
//
//	if err := limits.ValidateVoicePacket(frame); err != nil {
//	    // ErrPacketEmpty or ErrPacketTooLarge
//	}
//
// For custom limits use ValidatePacketSize.
package limits
