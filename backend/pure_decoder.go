package backend

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// pureDecoderRate is the rate at which the SILK decoder emits PCM.
const pureDecoderRate = 48000

// silkFrameMs maps the low two bits of a SILK TOC configuration to the
// frame duration in milliseconds.
var silkFrameMs = [4]int{10, 20, 40, 60}

// PureDecoder decodes SILK-mode Opus packets without cgo. Output is
// resampled from 48kHz mono to the stream format.
type PureDecoder struct {
	format    Format
	dec       opus.Decoder
	resampler *Resampler
	raw       []byte
}

// NewPureDecoder creates a pion/opus backed decoder for format.
func NewPureDecoder(format Format) (*PureDecoder, error) {
	if format.SampleRate == 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("%w: unsupported format %+v", ErrCodecInit, format)
	}

	resampler, err := NewResampler(ResamplerConfig{
		InputRate:  pureDecoderRate,
		OutputRate: format.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodecInit, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewPureDecoder",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Debug("Created pure Go SILK decoder")

	return &PureDecoder{
		format:    format,
		dec:       opus.NewDecoder(),
		resampler: resampler,
		raw:       make([]byte, pureDecoderRate/1000*silkFrameMs[3]*2),
	}, nil
}

// frameSamples returns the number of 48kHz samples a packet decodes to, or
// zero if the TOC does not describe a single SILK frame.
func frameSamples(toc byte) int {
	config := toc >> 3
	if config > 11 || toc&0x03 != 0 {
		return 0
	}
	return silkFrameMs[config&0x03] * pureDecoderRate / 1000
}

// Decode implements Decoder.
func (d *PureDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if len(data) < 3 {
		return 0, nil
	}
	n := frameSamples(data[0])
	if n == 0 {
		return 0, fmt.Errorf("%w: unsupported toc 0x%02x", ErrInvalidPacket, data[0])
	}

	raw := d.raw[:n*2]
	bandwidth, isStereo, err := d.dec.Decode(data, raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "PureDecoder.Decode",
			"error":    err.Error(),
		}).Debug("SILK decode failed")
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}

	mono := make([]int16, n)
	for i := range mono {
		mono[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	resampled, err := d.resampler.Resample(mono)
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "PureDecoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
		"samples":   len(resampled),
	}).Trace("SILK frame decoded")

	ch := d.format.Channels
	frames := len(resampled)
	if frames*ch > len(pcm) {
		frames = len(pcm) / ch
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			pcm[i*ch+c] = resampled[i]
		}
	}
	return frames, nil
}

// Close implements Decoder.
func (d *PureDecoder) Close() error {
	d.resampler.Reset()
	return nil
}
