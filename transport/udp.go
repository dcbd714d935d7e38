package transport

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/gamevoice/limits"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrNoPeer indicates a send without a configured peer address.
var ErrNoPeer = errors.New("no peer address configured")

// ErrOpenFailed indicates a sealed payload that failed authentication.
var ErrOpenFailed = errors.New("sealed payload failed authentication")

// UDPConfig configures a UDPTransport.
type UDPConfig struct {
	// ListenAddr is the local address to bind, e.g. ":7000".
	ListenAddr string
	// PeerAddr is where outgoing messages are sent. It may be set later
	// with SetPeer.
	PeerAddr string
	// SSRC identifies the local player in every packet sent.
	SSRC uint32
	// ClockRate is the capture sample rate, used for RTP timestamps.
	ClockRate uint32
	// SessionKey, when set, seals every payload with secretbox.
	SessionKey *[32]byte
}

// UDPTransport sends and receives voice messages as RTP over UDP.
type UDPTransport struct {
	conn       net.PacketConn
	peer       net.Addr
	handler    Handler
	mu         sync.RWMutex
	key        *[32]byte
	packetizer *packetizer
	sequencer  *sequencer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewUDPTransport binds the listen address. Call Serve to start receiving.
func NewUDPTransport(cfg UDPConfig) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "NewUDPTransport",
			"listen_addr": cfg.ListenAddr,
			"error":       err.Error(),
		}).Error("Failed to bind UDP socket")
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:       conn,
		key:        cfg.SessionKey,
		packetizer: newPacketizer(cfg.SSRC, cfg.ClockRate),
		sequencer:  newSequencer(),
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.PeerAddr != "" {
		if err := t.SetPeer(cfg.PeerAddr); err != nil {
			_ = conn.Close()
			cancel()
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
		"peer_addr":  cfg.PeerAddr,
		"ssrc":       cfg.SSRC,
		"sealed":     cfg.SessionKey != nil,
	}).Info("UDP voice transport ready")

	return t, nil
}

// SetPeer resolves and stores the destination of outgoing messages.
func (t *UDPTransport) SetPeer(addr string) error {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve peer %s: %w", addr, err)
	}
	t.mu.Lock()
	t.peer = peer
	t.mu.Unlock()
	return nil
}

// RegisterHandler sets the receiver of incoming messages.
func (t *UDPTransport) RegisterHandler(handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// SendVoice implements Sink.
func (t *UDPTransport) SendVoice(msg Message) error {
	t.mu.RLock()
	peer := t.peer
	t.mu.RUnlock()
	if peer == nil {
		return ErrNoPeer
	}

	body, err := msg.Serialize()
	if err != nil {
		return err
	}
	if t.key != nil {
		body, err = seal(body, t.key)
		if err != nil {
			return err
		}
	}

	data, err := t.packetizer.packetize(msg.Kind, body)
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteTo(data, peer); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

// Serve reads and dispatches packets until ctx is cancelled or the
// transport is closed. Handlers run on the Serve goroutine in arrival order.
func (t *UDPTransport) Serve(ctx context.Context) error {
	buffer := make([]byte, limits.MaxDatagram)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ctx.Done():
			return nil
		default:
		}
		if err := t.processIncomingPacket(buffer); err != nil {
			return err
		}
	}
}

// processIncomingPacket reads and processes a single incoming packet. Only
// socket failures are returned; malformed packets are dropped.
func (t *UDPTransport) processIncomingPacket(buffer []byte) error {
	data, err := t.readPacketData(buffer)
	if err != nil {
		return t.handleReadError(err)
	}

	packet, kind, err := depacketize(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"error":    err.Error(),
		}).Debug("Dropping malformed packet")
		return nil
	}
	body := packet.Payload
	if t.key != nil {
		body, err = open(body, t.key)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.processIncomingPacket",
				"ssrc":     packet.SSRC,
				"error":    err.Error(),
			}).Warn("Dropping unauthenticated packet")
			return nil
		}
	}

	msg, err := ParseMessage(kind, body)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"ssrc":     packet.SSRC,
			"error":    err.Error(),
		}).Debug("Dropping undecodable message")
		return nil
	}

	// Only authenticated, well-formed packets may advance the sequence.
	if !t.sequencer.accept(packet.SSRC, packet.SequenceNumber) {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"ssrc":     packet.SSRC,
			"sequence": packet.SequenceNumber,
		}).Debug("Dropping out-of-sequence packet")
		return nil
	}

	t.dispatch(packet.SSRC, msg)
	return nil
}

// readPacketData reads data from the connection with timeout handling.
func (t *UDPTransport) readPacketData(buffer []byte) ([]byte, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, _, err := t.conn.ReadFrom(buffer)
	if err != nil {
		return nil, err
	}
	return buffer[:n], nil
}

// handleReadError swallows timeouts and reports everything else, except
// reads interrupted by Close.
func (t *UDPTransport) handleReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.handleReadError",
		"error":    err.Error(),
	}).Error("UDP read failed")
	return fmt.Errorf("read: %w", err)
}

func (t *UDPTransport) dispatch(source uint32, msg Message) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return
	}
	handler(source, msg)
}

// Close shuts down the transport.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// seal prepends a random nonce and the secretbox of body.
func seal(body []byte, key *[32]byte) ([]byte, error) {
	var nonce [limits.SealNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], body, &nonce, key), nil
}

// open authenticates and decrypts a sealed body.
func open(sealed []byte, key *[32]byte) ([]byte, error) {
	if err := limits.ValidateSealedPacket(sealed); err != nil {
		return nil, err
	}
	var nonce [limits.SealNonceSize]byte
	copy(nonce[:], sealed[:limits.SealNonceSize])
	body, ok := secretbox.Open(nil, sealed[limits.SealNonceSize:], &nonce, key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return body, nil
}
