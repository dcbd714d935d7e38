package backend

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryBackend is an in-process Backend. Capture devices are fed through
// MemoryCapture.Deliver and playback streams are plain PushStreams that the
// caller drains with Read.
type MemoryBackend struct {
	Codecs

	mu          sync.Mutex
	initialized bool
	captures    []*MemoryCapture
	playbacks   []*PushStream

	// FailCapture and FailPlayback make the next Open call fail with
	// ErrDeviceUnavailable.
	FailCapture  bool
	FailPlayback bool
}

// NewMemoryBackend creates a MemoryBackend using codecs. A nil codecs
// selects PCMCodecs.
func NewMemoryBackend(codecs Codecs) *MemoryBackend {
	if codecs == nil {
		codecs = PCMCodecs{}
	}
	return &MemoryBackend{Codecs: codecs}
}

// Init implements Backend.
func (b *MemoryBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Shutdown implements Backend and closes every stream still open.
func (b *MemoryBackend) Shutdown() error {
	b.mu.Lock()
	captures := b.captures
	playbacks := b.playbacks
	b.captures = nil
	b.playbacks = nil
	b.initialized = false
	b.mu.Unlock()

	for _, c := range captures {
		_ = c.Close()
	}
	for _, p := range playbacks {
		_ = p.Close()
	}
	return nil
}

// Initialized reports whether Init has been called without a later Shutdown.
func (b *MemoryBackend) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// OpenCapture implements Devices.
func (b *MemoryBackend) OpenCapture(format Format, cb CaptureCallback) (CaptureStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	if b.FailCapture {
		return nil, fmt.Errorf("%w: capture disabled", ErrDeviceUnavailable)
	}

	c := &MemoryCapture{format: format, cb: cb}
	b.captures = append(b.captures, c)

	logrus.WithFields(logrus.Fields{
		"function":    "MemoryBackend.OpenCapture",
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Debug("Opened in-memory capture device")

	return c, nil
}

// OpenPlayback implements Devices.
func (b *MemoryBackend) OpenPlayback(format Format) (PlaybackStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}
	if b.FailPlayback {
		return nil, fmt.Errorf("%w: playback disabled", ErrDeviceUnavailable)
	}

	s := NewPushStream(format)
	b.playbacks = append(b.playbacks, s)
	return s, nil
}

// Captures returns every capture device opened so far, including closed ones.
func (b *MemoryBackend) Captures() []*MemoryCapture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*MemoryCapture(nil), b.captures...)
}

// Playbacks returns every playback stream opened so far, including closed ones.
func (b *MemoryBackend) Playbacks() []*PushStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*PushStream(nil), b.playbacks...)
}

// MemoryCapture is a capture device driven by the caller.
type MemoryCapture struct {
	mu     sync.Mutex
	format Format
	cb     CaptureCallback
	closed bool
}

// DeviceName implements CaptureStream.
func (c *MemoryCapture) DeviceName() string {
	return "memory"
}

// Format returns the negotiated capture format.
func (c *MemoryCapture) Format() Format {
	return c.format
}

// Deliver hands samples to the capture callback as a device thread would.
// Samples delivered after Close are dropped.
func (c *MemoryCapture) Deliver(samples []int16) {
	c.mu.Lock()
	cb := c.cb
	closed := c.closed
	c.mu.Unlock()
	if closed || cb == nil {
		return
	}
	cb(samples)
}

// Closed reports whether the device has been released.
func (c *MemoryCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close implements CaptureStream.
func (c *MemoryCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
