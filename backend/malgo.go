package backend

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// MalgoBackend opens real audio devices through miniaudio.
type MalgoBackend struct {
	Codecs

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend creates a device backend using codecs. A nil codecs
// selects OpusCodecs.
func NewMalgoBackend(codecs Codecs) *MalgoBackend {
	if codecs == nil {
		codecs = OpusCodecs{}
	}
	return &MalgoBackend{Codecs: codecs}
}

// Init implements Backend.
func (b *MalgoBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "MalgoBackend.Init",
			"message":  message,
		}).Debug("miniaudio")
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MalgoBackend.Init",
			"error":    err.Error(),
		}).Error("Failed to initialize audio context")
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	b.ctx = ctx
	return nil
}

// Shutdown implements Backend. Streams must be closed before shutdown.
func (b *MalgoBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *MalgoBackend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, ErrNotInitialized
	}
	return b.ctx, nil
}

func (b *MalgoBackend) defaultDeviceName(kind malgo.DeviceType) string {
	ctx, err := b.context()
	if err != nil {
		return ""
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info.Name()
		}
	}
	if len(infos) > 0 {
		return infos[0].Name()
	}
	return ""
}

// OpenCapture implements Devices.
func (b *MalgoBackend) OpenCapture(format Format, cb CaptureCallback) (CaptureStream, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = format.SampleRate
	cfg.Alsa.NoMMap = 1

	var scratch []int16
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			n := int(frames) * format.Channels
			if len(input) < n*2 {
				n = len(input) / 2
			}
			if cap(scratch) < n {
				scratch = make([]int16, n)
			}
			samples := scratch[:n]
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
			}
			cb(samples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "MalgoBackend.OpenCapture",
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Failed to open capture device")
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &malgoCapture{
		device: device,
		name:   b.defaultDeviceName(malgo.Capture),
	}, nil
}

// OpenPlayback implements Devices. The returned stream starts paused; the
// device keeps running and plays silence until Play is called.
func (b *MalgoBackend) OpenPlayback(format Format) (PlaybackStream, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	stream := NewPushStream(format)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = format.SampleRate
	cfg.Alsa.NoMMap = 1

	var scratch []int16
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			n := int(frames) * format.Channels
			if len(output) < n*2 {
				n = len(output) / 2
			}
			if cap(scratch) < n {
				scratch = make([]int16, n)
			}
			samples := scratch[:n]
			stream.Read(samples)
			for i, v := range samples {
				binary.LittleEndian.PutUint16(output[i*2:], uint16(v))
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "MalgoBackend.OpenPlayback",
			"sample_rate": format.SampleRate,
			"channels":    format.Channels,
			"error":       err.Error(),
		}).Error("Failed to open playback device")
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &malgoPlayback{PushStream: stream, device: device}, nil
}

type malgoCapture struct {
	once   sync.Once
	device *malgo.Device
	name   string
}

func (c *malgoCapture) DeviceName() string {
	return c.name
}

func (c *malgoCapture) Close() error {
	var err error
	c.once.Do(func() {
		err = c.device.Stop()
		c.device.Uninit()
	})
	return err
}

// malgoPlayback ties a PushStream to the device draining it.
type malgoPlayback struct {
	*PushStream
	once   sync.Once
	device *malgo.Device
}

func (p *malgoPlayback) Close() error {
	var err error
	p.once.Do(func() {
		err = p.device.Stop()
		p.device.Uninit()
		_ = p.PushStream.Close()
	})
	return err
}
