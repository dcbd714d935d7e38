package backend

import "errors"

// Device errors.
var (
	// ErrDeviceUnavailable indicates a capture or playback device could not be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrNotInitialized indicates the backend was used before Init or after Shutdown.
	ErrNotInitialized = errors.New("audio backend not initialized")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrNotSeekable indicates a position before the already played data.
	ErrNotSeekable = errors.New("position not seekable")
)

// Codec errors.
var (
	// ErrCodecInit indicates encoder or decoder creation failed.
	ErrCodecInit = errors.New("codec initialization failed")

	// ErrBufferTooSmall indicates the output buffer cannot hold the result.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrInvalidPacket indicates a compressed packet could not be decoded.
	ErrInvalidPacket = errors.New("invalid packet")
)

// Attribute and effect errors.
var (
	// ErrInvalidEffectSlot indicates an effect slot outside the supported range.
	ErrInvalidEffectSlot = errors.New("invalid effect slot")

	// ErrUnknownEffect indicates a handle that is not applied to the stream.
	ErrUnknownEffect = errors.New("unknown effect handle")

	// ErrInvalidAttribute indicates an unsupported attribute or value.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrInvalidDataLength indicates an unsupported FFT or wave data length.
	ErrInvalidDataLength = errors.New("invalid data length")
)
