// Package capture records the local player's microphone, encodes it in 20ms
// frames and hands the frames to a transport sink while push-to-talk is held.
//
// The capture device delivers samples on its own thread through
// OnHardwareSamples; the host's update loop calls Tick, which drains whole
// frames from a circular buffer, encodes them and sends them. A single mutex
// guards the buffer and the voice state. It is never held while raising a
// notification or handing data to the sink, so handlers may call back into
// the Recorder.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/gamevoice/backend"
	"github.com/opd-ai/gamevoice/events"
	"github.com/opd-ai/gamevoice/limits"
	"github.com/opd-ai/gamevoice/transport"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSendInterval is the minimum time between two send bursts.
	DefaultSendInterval = 100 * time.Millisecond

	defaultSampleRate = 16000
	defaultComplexity = 8
	defaultChannels   = 2

	// minTransmitSize is the smallest encoded frame worth sending; anything
	// shorter is a discontinuous transmission silence marker.
	minTransmitSize = 3
)

// Options tunes a Recorder. The zero value selects the defaults.
type Options struct {
	// FrameCount is the capacity of the circular buffer in 20ms frames.
	FrameCount int
	// SendInterval is the minimum time between send bursts.
	SendInterval time.Duration
	// TimeProvider replaces the wall clock in tests.
	TimeProvider TimeProvider
	// LocalPlayer reports the id of the local player. While it reports
	// false no voice-start is attempted and nothing is transmitted.
	LocalPlayer func() (uint32, bool)
	// Feedback receives every transmitted frame, for local playback of
	// one's own voice.
	Feedback func(frame []byte)
}

// Recorder is the local capture session.
type Recorder struct {
	mu sync.Mutex

	backend  backend.Backend
	sink     transport.Sink
	notifier events.Notifier
	opts     Options

	enabled    bool
	state      State
	sampleRate uint32
	channels   int
	complexity int
	bitrate    int
	frameSize  int

	ring    *ringBuffer
	scratch []int16
	packet  []byte

	capture backend.CaptureStream
	encoder backend.Encoder

	lastSend time.Time
}

// NewRecorder creates an idle recorder. Call Start once the server has
// negotiated voice parameters.
func NewRecorder(b backend.Backend, sink transport.Sink, notifier events.Notifier, opts Options) *Recorder {
	if opts.FrameCount <= 0 {
		opts.FrameCount = limits.DefaultFrameCount
	}
	if opts.SendInterval <= 0 {
		opts.SendInterval = DefaultSendInterval
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = DefaultTimeProvider{}
	}
	if opts.LocalPlayer == nil {
		opts.LocalPlayer = func() (uint32, bool) { return 0, true }
	}
	if notifier == nil {
		notifier = events.Nop
	}

	r := &Recorder{
		backend:  b,
		sink:     sink,
		notifier: notifier,
		opts:     opts,
	}
	r.resetLocked()
	return r
}

func (r *Recorder) resetLocked() {
	r.enabled = false
	r.state = AwaitingInput
	r.sampleRate = defaultSampleRate
	r.channels = defaultChannels
	r.complexity = defaultComplexity
	r.bitrate = 0
	r.frameSize = 0
	r.ring = nil
	r.scratch = nil
	r.packet = nil
	r.lastSend = time.Time{}
}

// Start opens the capture device and the encoder. It does nothing when
// enabled is false. Failures are logged and leave the recorder disabled;
// no error is returned and nothing is retried. Start and Stop must not be
// called concurrently with each other.
func (r *Recorder) Start(enabled bool, rateCode, complexity, bitrate int) {
	r.Stop()
	if !enabled {
		return
	}

	format := backend.Format{SampleRate: RateCodeToSampleRate(rateCode), Channels: 1}
	frameSize := format.FrameSize()
	frameLen := frameSize * format.Channels

	r.mu.Lock()
	r.state = AwaitingInput
	r.sampleRate = format.SampleRate
	r.channels = format.Channels
	r.complexity = complexity
	r.frameSize = frameSize
	r.ring = newRingBuffer(frameLen * r.opts.FrameCount)
	r.scratch = make([]int16, frameLen)
	r.packet = make([]byte, limits.MaxVoicePacket)
	r.mu.Unlock()

	capture, err := r.backend.OpenCapture(format, r.OnHardwareSamples)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "Recorder.Start",
			"sample_rate": format.SampleRate,
			"error":       err.Error(),
		}).Error("Failed to open capture device, voice disabled")
		r.Stop()
		return
	}

	encoder, err := r.backend.NewEncoder(format, backend.AppVoIP)
	if err == nil {
		err = encoder.Configure(backend.EncoderOptions{
			Complexity: complexity,
			DTX:        true,
			Signal:     backend.SignalVoice,
			Bitrate:    bitrate,
		})
		if err != nil {
			_ = encoder.Close()
		}
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "Recorder.Start",
			"sample_rate": format.SampleRate,
			"complexity":  complexity,
			"error":       err.Error(),
		}).Error("Encoder creation failed, voice disabled")
		_ = capture.Close()
		r.Stop()
		return
	}

	effective := bitrate
	if effective == 0 {
		if effective, err = encoder.Bitrate(); err != nil {
			effective = 0
		}
	}

	r.mu.Lock()
	r.capture = capture
	r.encoder = encoder
	r.bitrate = effective
	r.enabled = true
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Recorder.Start",
		"device":      capture.DeviceName(),
		"sample_rate": format.SampleRate,
		"complexity":  complexity,
		"bitrate":     effective,
		"frame_size":  frameSize,
		"buffer_len":  frameLen * r.opts.FrameCount,
	}).Info("Voice capture started")
}

// Stop releases the device and the encoder and restores every field to its
// default. It is idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	capture := r.capture
	encoder := r.encoder
	wasEnabled := r.enabled
	r.capture = nil
	r.encoder = nil
	r.resetLocked()
	r.mu.Unlock()

	// The device is closed without the lock: stopping it waits for an
	// in-flight callback, which may be waiting for the lock.
	if capture != nil {
		if err := capture.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Recorder.Stop",
				"error":    err.Error(),
			}).Warn("Failed to close capture device")
		}
	}
	if encoder != nil {
		_ = encoder.Close()
	}

	if wasEnabled {
		logrus.WithFields(logrus.Fields{
			"function": "Recorder.Stop",
		}).Info("Voice capture stopped")
	}
}

// OnHardwareSamples is the capture callback. Samples arriving while idle
// or disabled are discarded. When the tick falls behind, the oldest unread
// samples are overwritten.
func (r *Recorder) OnHardwareSamples(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || r.state == AwaitingInput || r.ring == nil {
		return
	}
	r.ring.put(samples)
}

// SetPushToTalk reports the push-to-talk key. Pressing it while idle raises
// the cancellable voice-start notification; releasing it while recording
// raises voice-stop and schedules the final flush.
func (r *Recorder) SetPushToTalk(active bool) {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return
	}

	if active {
		if r.state != AwaitingInput {
			r.mu.Unlock()
			return
		}
		id, ok := r.opts.LocalPlayer()
		if !ok {
			r.mu.Unlock()
			return
		}

		r.mu.Unlock()
		if !r.notifier.Raise(events.VoiceStart, id) {
			logrus.WithFields(logrus.Fields{
				"function": "Recorder.SetPushToTalk",
				"player":   id,
			}).Debug("Voice start cancelled")
			return
		}
		r.mu.Lock()

		if r.enabled && r.state == AwaitingInput {
			r.state = Recording
			r.ring.reset()
		}
		r.mu.Unlock()
		return
	}

	if r.state != Recording {
		r.mu.Unlock()
		return
	}
	r.state = RecordingLastPacket
	id, ok := r.opts.LocalPlayer()
	r.mu.Unlock()

	if ok {
		r.notifier.Raise(events.VoiceStop, id)
	}
}

// Tick drains and sends buffered frames. While recording it sends at most
// one burst per send interval; after push-to-talk is released it flushes
// every whole frame, sends the end marker and returns to idle.
func (r *Recorder) Tick() {
	frames, end := r.drain()
	if len(frames) == 0 && !end {
		return
	}

	id, ok := r.opts.LocalPlayer()
	for _, frame := range frames {
		if r.opts.Feedback != nil {
			r.opts.Feedback(frame)
		}
		if ok {
			r.send(transport.Message{Kind: transport.KindVoiceData, Payload: frame})
		}
	}
	if end && ok {
		r.send(transport.Message{Kind: transport.KindVoiceEnd})
	}

	if end {
		logrus.WithFields(logrus.Fields{
			"function": "Recorder.Tick",
			"player":   id,
		}).Debug("Voice transmission ended")
	}
}

// drain encodes whole frames under the lock and returns copies of the
// packets to transmit, plus whether the end marker is due.
func (r *Recorder) drain() ([][]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || r.state == AwaitingInput || r.ring == nil || r.encoder == nil {
		return nil, false
	}

	flushing := r.state == RecordingLastPacket
	var out [][]byte
	if flushing || r.opts.TimeProvider.Since(r.lastSend) >= r.opts.SendInterval {
		if dropped := r.ring.resync(); dropped > 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Recorder.Tick",
				"dropped":  dropped,
			}).Warn("Capture buffer overrun, oldest samples lost")
		}

		frameLen := r.frameSize * r.channels
		available := r.ring.frames(frameLen)
		for i := 0; i < available; i++ {
			frame := r.ring.next(frameLen, r.scratch)
			n, err := r.encoder.Encode(frame, r.packet)
			if err != nil {
				if !errors.Is(err, backend.ErrBufferTooSmall) {
					logrus.WithFields(logrus.Fields{
						"function": "Recorder.Tick",
						"error":    err.Error(),
					}).Debug("Encode failed, frame skipped")
				}
				continue
			}
			if n < minTransmitSize {
				continue
			}
			packet := make([]byte, n)
			copy(packet, r.packet[:n])
			out = append(out, packet)
		}
		if available > 0 {
			r.lastSend = r.opts.TimeProvider.Now()
		}
	}

	if flushing {
		r.state = AwaitingInput
		return out, true
	}
	return out, false
}

func (r *Recorder) send(msg transport.Message) {
	if r.sink == nil {
		return
	}
	if err := r.sink.SendVoice(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Recorder.send",
			"kind":     msg.Kind.String(),
			"size":     len(msg.Payload),
			"error":    err.Error(),
		}).Warn("Failed to transmit voice message")
	}
}

// IsEnabled reports whether a capture session is running.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// State returns the push-to-talk state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PushToTalkActive reports whether the recorder is not idle.
func (r *Recorder) PushToTalkActive() bool {
	return r.State() != AwaitingInput
}

// SampleRate returns the negotiated sample rate.
func (r *Recorder) SampleRate() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleRate
}

// Channels returns the capture channel count.
func (r *Recorder) Channels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels
}

// Format returns the negotiated format, which playback voices share.
func (r *Recorder) Format() backend.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return backend.Format{SampleRate: r.sampleRate, Channels: r.channels}
}

// Complexity returns the encoder complexity.
func (r *Recorder) Complexity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complexity
}

// Bitrate returns the effective encoder bitrate in bits per second.
func (r *Recorder) Bitrate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bitrate
}

// FrameSize returns the number of samples per channel in one frame.
func (r *Recorder) FrameSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameSize
}

// BufferLength returns the capacity of the circular buffer in samples.
func (r *Recorder) BufferLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring == nil {
		return 0
	}
	return r.ring.len()
}
