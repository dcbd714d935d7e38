// Package backend defines the audio device and speech codec surface used by
// the voice pipelines.
//
// Both the capture recorder and every playback voice receive a Backend handle
// at construction instead of calling process-wide device functions. A Backend
// has an explicit Init/Shutdown lifecycle and hands out exclusively owned
// streams, encoders and decoders; every one of them is released through Close.
//
// Implementations shipped here:
//
//   - MalgoBackend: miniaudio capture/playback devices via gen2brain/malgo
//   - MemoryBackend: in-process devices for headless clients and tests
//   - OpusCodecs: libopus encoder/decoder via hraban/opus
//   - PureDecoder: pion/opus SILK decoder, selected through OpusCodecs.PureDecoder
//   - PCMCodecs: PCM passthrough codec with discontinuous transmission
package backend

// Format describes a negotiated PCM format.
type Format struct {
	SampleRate uint32
	Channels   int
}

// FrameSize returns the number of samples per channel in one 20ms frame.
func (f Format) FrameSize() int {
	return int(f.SampleRate / 50)
}

// BytesPerSecond returns the byte rate of interleaved 16-bit PCM in this format.
func (f Format) BytesPerSecond() int64 {
	return int64(f.SampleRate) * int64(f.Channels) * 2
}

// CaptureCallback receives interleaved 16-bit samples from a capture device.
// It runs on the device thread and must not block.
type CaptureCallback func(samples []int16)

// Application selects the encoder tuning profile.
type Application int

const (
	// AppVoIP favours speech intelligibility.
	AppVoIP Application = iota
	// AppAudio favours faithful reproduction of non-speech input.
	AppAudio
)

// Signal is a hint about the content being encoded.
type Signal int

const (
	SignalAuto Signal = iota
	SignalVoice
	SignalMusic
)

// EncoderOptions carries the tunables applied after encoder creation.
type EncoderOptions struct {
	Complexity int
	DTX        bool
	Signal     Signal
	// Bitrate in bits per second; zero keeps the encoder default.
	Bitrate int
}

// CaptureStream is an open recording device.
type CaptureStream interface {
	// DeviceName returns a human readable name of the device in use.
	DeviceName() string
	// Close stops recording and releases the device.
	Close() error
}

// PlaybackStream is an open push-mode output stream.
type PlaybackStream interface {
	// Push queues interleaved samples for playback.
	Push(pcm []int16) error
	Play() error
	Pause() error
	Close() error

	Attribute(attr Attribute) (float32, error)
	SetAttribute(attr Attribute, value float32) error

	// Position and Length are expressed in bytes of 16-bit PCM.
	Position() (int64, error)
	SetPosition(pos int64) error
	Length() (int64, error)
	BytesToSeconds(n int64) float64
	SecondsToBytes(sec float64) int64

	SetFX(slot EffectSlot, priority int) (FXHandle, error)
	RemoveFX(h FXHandle) error

	// FFT returns n/2 magnitude bins of the most recently played audio.
	FFT(n int) ([]float32, error)
	// Wave returns the n most recently played samples, normalized to [-1, 1].
	Wave(n int) ([]float32, error)
	// Level packs the left peak in the low word and the right peak in the
	// high word, each in the range 0..32768.
	Level() uint32
}

// Encoder turns 20ms PCM frames into compressed packets.
type Encoder interface {
	Configure(opts EncoderOptions) error
	// Bitrate reports the effective bitrate in bits per second.
	Bitrate() (int, error)
	// Encode writes one packet for pcm into out and returns its length.
	Encode(pcm []int16, out []byte) (int, error)
	Close() error
}

// Decoder turns compressed packets back into PCM.
type Decoder interface {
	// Decode writes interleaved samples into pcm and returns the number of
	// samples per channel.
	Decode(data []byte, pcm []int16) (int, error)
	Close() error
}

// Devices opens capture and playback streams.
type Devices interface {
	OpenCapture(format Format, cb CaptureCallback) (CaptureStream, error)
	OpenPlayback(format Format) (PlaybackStream, error)
}

// Codecs creates speech encoders and decoders.
type Codecs interface {
	NewEncoder(format Format, app Application) (Encoder, error)
	NewDecoder(format Format) (Decoder, error)
}

// Backend is the injected audio device and codec handle.
type Backend interface {
	Init() error
	Shutdown() error
	Devices
	Codecs
}
