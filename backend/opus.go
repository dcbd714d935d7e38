package backend

import (
	"fmt"

	"github.com/hraban/opus"
	"github.com/sirupsen/logrus"
)

// OpusCodecs creates libopus encoders and decoders.
type OpusCodecs struct {
	// PureDecoder selects the pure Go SILK decoder instead of libopus for
	// incoming packets.
	PureDecoder bool
}

// NewEncoder implements Codecs.
func (c OpusCodecs) NewEncoder(format Format, app Application) (Encoder, error) {
	application := opus.AppVoIP
	if app == AppAudio {
		application = opus.AppAudio
	}

	enc, err := opus.NewEncoder(int(format.SampleRate), format.Channels, application)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "OpusCodecs.NewEncoder",
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Opus encoder creation failed")
		return nil, fmt.Errorf("%w: %v", ErrCodecInit, err)
	}
	return &OpusEncoder{enc: enc, format: format}, nil
}

// NewDecoder implements Codecs.
func (c OpusCodecs) NewDecoder(format Format) (Decoder, error) {
	if c.PureDecoder {
		return NewPureDecoder(format)
	}
	dec, err := opus.NewDecoder(int(format.SampleRate), format.Channels)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "OpusCodecs.NewDecoder",
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Opus decoder creation failed")
		return nil, fmt.Errorf("%w: %v", ErrCodecInit, err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// MaxBandwidth maps a sample rate to the widest Opus audio bandwidth it can
// carry. Unknown rates map to wideband.
func MaxBandwidth(sampleRate uint32) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.Narrowband
	case 12000:
		return opus.Mediumband
	case 16000:
		return opus.Wideband
	case 24000:
		return opus.SuperWideband
	case 48000:
		return opus.Fullband
	default:
		return opus.Wideband
	}
}

// OpusEncoder wraps a libopus encoder.
type OpusEncoder struct {
	enc    *opus.Encoder
	format Format
}

// Configure implements Encoder.
//
// libopus derives the signal type from the application chosen at creation,
// so opts.Signal is satisfied by creating the encoder with AppVoIP.
func (e *OpusEncoder) Configure(opts EncoderOptions) error {
	if err := e.enc.SetComplexity(opts.Complexity); err != nil {
		return fmt.Errorf("set complexity %d: %w", opts.Complexity, err)
	}
	if err := e.enc.SetDTX(opts.DTX); err != nil {
		return fmt.Errorf("set dtx: %w", err)
	}
	if err := e.enc.SetMaxBandwidth(MaxBandwidth(e.format.SampleRate)); err != nil {
		return fmt.Errorf("set max bandwidth: %w", err)
	}
	if opts.Bitrate != 0 {
		if err := e.enc.SetBitrate(opts.Bitrate); err != nil {
			return fmt.Errorf("set bitrate %d: %w", opts.Bitrate, err)
		}
	}
	return nil
}

// Bitrate implements Encoder.
func (e *OpusEncoder) Bitrate() (int, error) {
	return e.enc.Bitrate()
}

// Encode implements Encoder.
func (e *OpusEncoder) Encode(pcm []int16, out []byte) (int, error) {
	return e.enc.Encode(pcm, out)
}

// Close implements Encoder. The libopus state is released by the garbage
// collector; dropping the reference is enough.
func (e *OpusEncoder) Close() error {
	e.enc = nil
	return nil
}

// OpusDecoder wraps a libopus decoder.
type OpusDecoder struct {
	dec *opus.Decoder
}

// Decode implements Decoder.
func (d *OpusDecoder) Decode(data []byte, pcm []int16) (int, error) {
	n, err := d.dec.Decode(data, pcm)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	return n, nil
}

// Close implements Decoder.
func (d *OpusDecoder) Close() error {
	d.dec = nil
	return nil
}
