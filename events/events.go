// Package events carries voice notifications from the pipelines to the host
// application.
//
// Handlers run synchronously on the goroutine that raised the signal. The
// pipelines never hold their own locks while raising, so a handler may call
// back into the recorder or a playback voice.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Signal names a voice notification.
type Signal int

const (
	// VoiceStart is raised when the local player starts transmitting. It is
	// cancellable.
	VoiceStart Signal = iota
	// VoiceStop is raised when the local player releases push-to-talk.
	VoiceStop
	// PlayerVoiceStart is raised when a remote source starts speaking. It is
	// cancellable.
	PlayerVoiceStart
	// PlayerVoiceStop is raised when a remote source stops speaking.
	PlayerVoiceStop
	// PlayerVoicePause carries the reason string "paused".
	PlayerVoicePause
	// PlayerVoiceResumed carries the reason string "resumed".
	PlayerVoiceResumed
)

// String returns the script-facing name of the signal.
func (s Signal) String() string {
	switch s {
	case VoiceStart:
		return "onClientVoiceStart"
	case VoiceStop:
		return "onClientVoiceStop"
	case PlayerVoiceStart:
		return "onClientPlayerVoiceStart"
	case PlayerVoiceStop:
		return "onClientPlayerVoiceStop"
	case PlayerVoicePause:
		return "onClientPlayerVoicePause"
	case PlayerVoiceResumed:
		return "onClientPlayerVoiceResumed"
	default:
		return "unknown"
	}
}

// Cancellable reports whether a handler can veto the signal.
func (s Signal) Cancellable() bool {
	return s == VoiceStart || s == PlayerVoiceStart
}

// Notifier delivers signals. Raise returns false when a cancellable signal
// was vetoed; for other signals the result is always true.
type Notifier interface {
	Raise(sig Signal, source uint32, args ...interface{}) bool
}

// Handler observes a signal. Returning false cancels a cancellable signal.
type Handler func(source uint32, args ...interface{}) bool

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(sig Signal, source uint32, args ...interface{}) bool

// Raise implements Notifier.
func (f NotifierFunc) Raise(sig Signal, source uint32, args ...interface{}) bool {
	return f(sig, source, args...)
}

// Nop accepts every signal.
var Nop Notifier = NotifierFunc(func(Signal, uint32, ...interface{}) bool { return true })

// Bus dispatches signals to registered handlers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Signal][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Signal][]Handler)}
}

// On registers h for sig.
func (b *Bus) On(sig Signal, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[sig] = append(b.handlers[sig], h)
}

// Clear removes every handler for sig.
func (b *Bus) Clear(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, sig)
}

// Raise implements Notifier. Every handler runs even after one cancels.
func (b *Bus) Raise(sig Signal, source uint32, args ...interface{}) bool {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[sig]...)
	b.mu.RUnlock()

	accepted := true
	for _, h := range handlers {
		if !h(source, args...) {
			accepted = false
		}
	}

	if !sig.Cancellable() {
		accepted = true
	}

	logrus.WithFields(logrus.Fields{
		"function": "Bus.Raise",
		"signal":   sig.String(),
		"source":   source,
		"handlers": len(handlers),
		"accepted": accepted,
	}).Debug("Signal raised")

	return accepted
}
