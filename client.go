package gamevoice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/gamevoice/backend"
	"github.com/opd-ai/gamevoice/capture"
	"github.com/opd-ai/gamevoice/events"
	"github.com/opd-ai/gamevoice/playback"
	"github.com/opd-ai/gamevoice/transport"
	"github.com/sirupsen/logrus"
)

// ErrNoBackend indicates Options without an audio backend.
var ErrNoBackend = errors.New("gamevoice: audio backend required")

// Options configures a Client.
type Options struct {
	// Backend provides devices and codecs. Its lifecycle belongs to the caller.
	Backend backend.Backend
	// Sink receives outgoing voice messages. Nil discards them.
	Sink transport.Sink
	// Notifier receives voice notifications. Nil accepts everything.
	Notifier events.Notifier
	// Settings supplies the voice and master volume.
	Settings playback.VolumeSource

	// DebugLocalPlayback makes the local player's own voice audible.
	DebugLocalPlayback bool
	// AcceptUnknownSources creates a voice for any source that sends data
	// instead of dropping its messages.
	AcceptUnknownSources bool

	FrameCount   int
	SendInterval time.Duration
	TimeProvider capture.TimeProvider
}

// Client is a voice chat participant: one capture session and one
// playback voice per source.
type Client struct {
	opts      Options
	sessionID string
	recorder  *capture.Recorder

	mu       sync.RWMutex
	voices   map[uint32]*playback.Voice
	localID  uint32
	hasLocal bool
}

// NewClient creates an idle client. Voice is not captured until
// StartSession is called.
func NewClient(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop
	}

	c := &Client{
		opts:   opts,
		voices: make(map[uint32]*playback.Voice),
	}
	c.recorder = capture.NewRecorder(opts.Backend, opts.Sink, opts.Notifier, capture.Options{
		FrameCount:   opts.FrameCount,
		SendInterval: opts.SendInterval,
		TimeProvider: opts.TimeProvider,
		LocalPlayer:  c.LocalPlayer,
		Feedback:     c.localFeedback,
	})
	return c, nil
}

// SetLocalPlayer sets the id of the local player, which is required before
// any voice is transmitted.
func (c *Client) SetLocalPlayer(id uint32) {
	c.mu.Lock()
	c.localID = id
	c.hasLocal = true
	c.mu.Unlock()
	c.refreshLocal()
}

// ClearLocalPlayer forgets the local player, for example while the client
// is between maps.
func (c *Client) ClearLocalPlayer() {
	c.mu.Lock()
	c.hasLocal = false
	c.mu.Unlock()
	c.refreshLocal()
}

// refreshLocal updates which voice is muted as the local player's own.
func (c *Client) refreshLocal() {
	c.mu.RLock()
	id, ok := c.localID, c.hasLocal
	voices := make([]*playback.Voice, 0, len(c.voices))
	for _, v := range c.voices {
		voices = append(voices, v)
	}
	c.mu.RUnlock()

	for _, v := range voices {
		v.SetLocal(ok && v.Source() == id)
	}
}

// LocalPlayer returns the local player id, if one is set.
func (c *Client) LocalPlayer() (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localID, c.hasLocal
}

// SessionID identifies the current voice session in logs. It is empty
// before the first StartSession.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Recorder returns the capture session.
func (c *Client) Recorder() *capture.Recorder {
	return c.recorder
}

// StartSession applies the server's voice parameters. Existing voices are
// closed because their format follows the capture format; sources must be
// added again.
func (c *Client) StartSession(enabled bool, rateCode, complexity, bitrate int) {
	c.closeVoices()
	c.recorder.Start(enabled, rateCode, complexity, bitrate)

	c.mu.Lock()
	c.sessionID = uuid.New().String()
	id := c.sessionID
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Client.StartSession",
		"session_id":  id,
		"enabled":     c.recorder.IsEnabled(),
		"sample_rate": c.recorder.SampleRate(),
		"bitrate":     c.recorder.Bitrate(),
	}).Info("Voice session started")
}

// EndSession stops capture and closes every voice.
func (c *Client) EndSession() {
	c.recorder.Stop()
	c.closeVoices()

	logrus.WithFields(logrus.Fields{
		"function":   "Client.EndSession",
		"session_id": c.SessionID(),
	}).Info("Voice session ended")
}

// Close is an alias for EndSession.
func (c *Client) Close() {
	c.EndSession()
}

func (c *Client) closeVoices() {
	c.mu.Lock()
	voices := c.voices
	c.voices = make(map[uint32]*playback.Voice)
	c.mu.Unlock()

	for _, v := range voices {
		v.Close()
	}
}

// AddSource creates the playback voice for source, or returns the
// existing one.
func (c *Client) AddSource(source uint32) *playback.Voice {
	format := c.recorder.Format()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addSourceLocked(source, format)
}

// addSourceLocked must not call into the recorder: the recorder reads the
// local player while holding its own lock.
func (c *Client) addSourceLocked(source uint32, format backend.Format) *playback.Voice {
	if v, ok := c.voices[source]; ok {
		return v
	}
	v := playback.New(source, format, c.opts.Backend, c.opts.Settings, c.opts.Notifier, playback.Options{
		IsLocal:            c.hasLocal && source == c.localID,
		DebugLocalPlayback: c.opts.DebugLocalPlayback,
		Name:               fmt.Sprintf("player-%d", source),
	})
	c.voices[source] = v

	logrus.WithFields(logrus.Fields{
		"function":   "Client.AddSource",
		"session_id": c.sessionID,
		"source":     source,
	}).Debug("Voice source added")

	return v
}

// RemoveSource closes and forgets the voice of source.
func (c *Client) RemoveSource(source uint32) {
	c.mu.Lock()
	v, ok := c.voices[source]
	delete(c.voices, source)
	c.mu.Unlock()

	if ok {
		v.Close()
	}
}

// Voice returns the playback voice of source.
func (c *Client) Voice(source uint32) (*playback.Voice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.voices[source]
	return v, ok
}

// SetPushToTalk forwards the push-to-talk key state to the recorder.
func (c *Client) SetPushToTalk(active bool) {
	c.recorder.SetPushToTalk(active)
}

// Iterate runs one update: the recorder sends buffered frames and every
// voice picks up volume changes.
func (c *Client) Iterate() {
	c.recorder.Tick()

	c.mu.RLock()
	voices := make([]*playback.Voice, 0, len(c.voices))
	for _, v := range c.voices {
		voices = append(voices, v)
	}
	c.mu.RUnlock()

	for _, v := range voices {
		v.Tick()
	}
}

// HandleMessage is the receive path. It has the transport.Handler
// signature so it can be registered with a transport directly.
func (c *Client) HandleMessage(source uint32, msg transport.Message) {
	v, ok := c.voiceFor(source)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Client.HandleMessage",
			"source":   source,
			"kind":     msg.Kind.String(),
		}).Debug("Voice message from unknown source dropped")
		return
	}

	switch msg.Kind {
	case transport.KindVoiceData:
		v.DecodeAndEnqueue(msg.Payload)
	case transport.KindVoiceEnd:
		v.SetVoiceActive(false)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Client.HandleMessage",
			"source":   source,
			"kind":     msg.Kind.String(),
		}).Warn("Unknown voice message kind")
	}
}

func (c *Client) voiceFor(source uint32) (*playback.Voice, bool) {
	if v, ok := c.Voice(source); ok {
		return v, true
	}
	if !c.opts.AcceptUnknownSources {
		return nil, false
	}
	return c.AddSource(source), true
}

// localFeedback plays one's own encoded voice through the local player's
// voice, which stays silent unless debug playback is enabled.
func (c *Client) localFeedback(frame []byte) {
	id, ok := c.LocalPlayer()
	if !ok {
		return
	}
	if v, ok := c.Voice(id); ok {
		v.DecodeAndEnqueue(frame)
	}
}
