package transport

// Sink accepts outgoing voice messages. Implementations must not block the
// caller for long; the recorder sends from the game tick.
type Sink interface {
	SendVoice(msg Message) error
}

// Handler processes a message received from source.
type Handler func(source uint32, msg Message)

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(msg Message) error

// SendVoice implements Sink.
func (f SinkFunc) SendVoice(msg Message) error {
	return f(msg)
}
