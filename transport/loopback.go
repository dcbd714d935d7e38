package transport

import (
	"sync"
)

// Loopback is an in-memory Sink. It records every message and, when a
// handler is registered, delivers it immediately as if received from Source.
type Loopback struct {
	Source uint32

	mu      sync.Mutex
	sent    []Message
	handler Handler
	err     error
}

// NewLoopback creates a loopback that reports messages as coming from source.
func NewLoopback(source uint32) *Loopback {
	return &Loopback{Source: source}
}

// RegisterHandler sets the receiver of looped-back messages.
func (l *Loopback) RegisterHandler(handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (l *Loopback) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// SendVoice implements Sink. The message goes through the wire codec so
// that oversized or malformed frames fail the same way they would on UDP.
func (l *Loopback) SendVoice(msg Message) error {
	body, err := msg.Serialize()
	if err != nil {
		return err
	}
	received, err := ParseMessage(msg.Kind, body)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return err
	}
	l.sent = append(l.sent, received)
	handler := l.handler
	source := l.Source
	l.mu.Unlock()

	if handler != nil {
		handler(source, received)
	}
	return nil
}

// Sent returns every message accepted so far.
func (l *Loopback) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}

// Count returns how many messages of kind were accepted.
func (l *Loopback) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.sent {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets recorded messages.
func (l *Loopback) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}
