package backend

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// pcmSilenceThreshold is the peak amplitude below which a frame counts as
// silence when discontinuous transmission is enabled.
const pcmSilenceThreshold = 64

// dtxMarker is emitted instead of a silent frame. It is shorter than any
// packet worth transmitting.
var dtxMarker = []byte{0x00}

// PCMCodecs creates passthrough encoders and decoders that carry 16-bit
// little-endian PCM. They need no native libraries and are used by
// headless clients and tests.
type PCMCodecs struct{}

// NewEncoder implements Codecs.
func (PCMCodecs) NewEncoder(format Format, app Application) (Encoder, error) {
	if format.SampleRate == 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("%w: unsupported format %+v", ErrCodecInit, format)
	}
	return NewPCMEncoder(format), nil
}

// NewDecoder implements Codecs.
func (PCMCodecs) NewDecoder(format Format) (Decoder, error) {
	if format.SampleRate == 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("%w: unsupported format %+v", ErrCodecInit, format)
	}
	return &PCMDecoder{format: format}, nil
}

// PCMEncoder is a passthrough encoder with optional discontinuous
// transmission: silent frames collapse to a one byte marker.
type PCMEncoder struct {
	format Format
	opts   EncoderOptions
}

// NewPCMEncoder creates a passthrough encoder for format.
func NewPCMEncoder(format Format) *PCMEncoder {
	logrus.WithFields(logrus.Fields{
		"function":    "NewPCMEncoder",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Debug("Creating PCM passthrough encoder")

	return &PCMEncoder{format: format}
}

// Configure implements Encoder. The bitrate of a passthrough stream is fixed
// by its format, so a requested bitrate is ignored.
func (e *PCMEncoder) Configure(opts EncoderOptions) error {
	if opts.Bitrate != 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "PCMEncoder.Configure",
			"requested": opts.Bitrate,
			"effective": e.bitrate(),
		}).Debug("PCM encoder bitrate is fixed by format")
	}
	e.opts = opts
	return nil
}

func (e *PCMEncoder) bitrate() int {
	return int(e.format.SampleRate) * e.format.Channels * 16
}

// Bitrate implements Encoder.
func (e *PCMEncoder) Bitrate() (int, error) {
	return e.bitrate(), nil
}

// Encode implements Encoder.
func (e *PCMEncoder) Encode(pcm []int16, out []byte) (int, error) {
	if e.opts.DTX && isSilent(pcm) {
		return copy(out, dtxMarker), nil
	}
	if len(out) < len(pcm)*2 {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(pcm)*2, len(out))
	}
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return len(pcm) * 2, nil
}

// Close implements Encoder.
func (e *PCMEncoder) Close() error {
	return nil
}

func isSilent(pcm []int16) bool {
	for _, s := range pcm {
		if s > pcmSilenceThreshold || s < -pcmSilenceThreshold {
			return false
		}
	}
	return true
}

// PCMDecoder reverses PCMEncoder. A DTX marker decodes to zero samples.
type PCMDecoder struct {
	format Format
}

// Decode implements Decoder.
func (d *PCMDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) < 3 {
		return 0, nil
	}
	align := 2 * d.format.Channels
	if len(data)%align != 0 {
		return 0, fmt.Errorf("%w: %d bytes not aligned to %d", ErrInvalidPacket, len(data), align)
	}
	n := len(data) / 2
	if n > len(pcm) {
		n = len(pcm) / d.format.Channels * d.format.Channels
	}
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return n / d.format.Channels, nil
}

// Close implements Decoder.
func (d *PCMDecoder) Close() error {
	return nil
}
