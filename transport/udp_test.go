package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	source uint32
	msg    Message
}

func newTestPair(t *testing.T, keyA, keyB *[32]byte) (*UDPTransport, *UDPTransport, chan received) {
	t.Helper()

	b, err := NewUDPTransport(UDPConfig{ListenAddr: "127.0.0.1:0", SSRC: 2, ClockRate: 16000, SessionKey: keyB})
	require.NoError(t, err)
	a, err := NewUDPTransport(UDPConfig{
		ListenAddr: "127.0.0.1:0",
		PeerAddr:   b.LocalAddr().String(),
		SSRC:       1,
		ClockRate:  16000,
		SessionKey: keyA,
	})
	require.NoError(t, err)

	ch := make(chan received, 8)
	b.RegisterHandler(func(source uint32, msg Message) {
		ch <- received{source: source, msg: msg}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = a.Close()
		_ = b.Close()
	})
	return a, b, ch
}

func waitMessage(t *testing.T, ch chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return received{}
	}
}

func TestUDPTransportRoundTrip(t *testing.T) {
	a, _, ch := newTestPair(t, nil, nil)

	require.NoError(t, a.SendVoice(Message{Kind: KindVoiceData, Payload: []byte{9, 8, 7}}))
	require.NoError(t, a.SendVoice(Message{Kind: KindVoiceEnd}))

	first := waitMessage(t, ch)
	assert.Equal(t, uint32(1), first.source)
	assert.Equal(t, KindVoiceData, first.msg.Kind)
	assert.Equal(t, []byte{9, 8, 7}, first.msg.Payload)

	second := waitMessage(t, ch)
	assert.Equal(t, KindVoiceEnd, second.msg.Kind)
	assert.Empty(t, second.msg.Payload)
}

func TestUDPTransportSealed(t *testing.T) {
	key := &[32]byte{1, 2, 3}
	a, _, ch := newTestPair(t, key, key)

	require.NoError(t, a.SendVoice(Message{Kind: KindVoiceData, Payload: []byte{4, 5, 6}}))
	got := waitMessage(t, ch)
	assert.Equal(t, []byte{4, 5, 6}, got.msg.Payload)
}

func TestUDPTransportDropsWrongKey(t *testing.T) {
	a, _, ch := newTestPair(t, &[32]byte{1}, &[32]byte{2})

	require.NoError(t, a.SendVoice(Message{Kind: KindVoiceData, Payload: []byte{4, 5, 6}}))
	select {
	case r := <-ch:
		t.Fatalf("unexpected delivery %+v", r)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUDPTransportWithoutPeer(t *testing.T) {
	tr, err := NewUDPTransport(UDPConfig{ListenAddr: "127.0.0.1:0", SSRC: 1, ClockRate: 16000})
	require.NoError(t, err)
	defer tr.Close()

	assert.ErrorIs(t, tr.SendVoice(Message{Kind: KindVoiceEnd}), ErrNoPeer)
	assert.Error(t, tr.SetPeer("not an address"))
}

func TestUDPTransportServeStopsOnClose(t *testing.T) {
	tr, err := NewUDPTransport(UDPConfig{ListenAddr: "127.0.0.1:0", SSRC: 1, ClockRate: 16000})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Serve(context.Background()) }()
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestSealOpen(t *testing.T) {
	key := &[32]byte{7}
	sealed, err := seal([]byte("voice"), key)
	require.NoError(t, err)

	body, err := open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("voice"), body)

	sealed[len(sealed)-1] ^= 0xFF
	_, err = open(sealed, key)
	assert.ErrorIs(t, err, ErrOpenFailed)
}

// rawSender writes hand-built RTP packets to a transport.
func rawSender(t *testing.T, to net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeRTP(t *testing.T, conn net.Conn, ssrc uint32, seq uint16, kind Kind, body []byte) {
	t.Helper()
	pt := payloadTypeVoiceData
	if kind == KindVoiceEnd {
		pt = payloadTypeVoiceEnd
	}
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         kind == KindVoiceEnd,
			PayloadType:    pt,
			SequenceNumber: seq,
			SSRC:           ssrc,
		},
		Payload: body,
	}
	data, err := packet.Marshal()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func voiceBody(t *testing.T, frame ...byte) []byte {
	t.Helper()
	body, err := EncodeVoiceData(frame)
	require.NoError(t, err)
	return body
}

func TestUDPTransportUnauthenticatedPacketKeepsSequence(t *testing.T) {
	key := &[32]byte{3, 1, 4}
	a, b, ch := newTestPair(t, key, key)

	forged := rawSender(t, b.LocalAddr())
	writeRTP(t, forged, 1, 30000, KindVoiceData, make([]byte, 64))
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.SendVoice(Message{Kind: KindVoiceData, Payload: []byte{byte(i + 1)}}))
	}
	for i := 0; i < 5; i++ {
		got := waitMessage(t, ch)
		assert.Equal(t, uint32(1), got.source)
		assert.Equal(t, []byte{byte(i + 1)}, got.msg.Payload)
	}
}

func TestUDPTransportDropsStaleAfterEnd(t *testing.T) {
	_, b, ch := newTestPair(t, nil, nil)
	conn := rawSender(t, b.LocalAddr())

	writeRTP(t, conn, 5, 10, KindVoiceData, voiceBody(t, 10))
	writeRTP(t, conn, 5, 12, KindVoiceEnd, nil)
	writeRTP(t, conn, 5, 11, KindVoiceData, voiceBody(t, 11))
	writeRTP(t, conn, 5, 12, KindVoiceEnd, nil)
	writeRTP(t, conn, 5, 13, KindVoiceData, voiceBody(t, 13))

	first := waitMessage(t, ch)
	assert.Equal(t, KindVoiceData, first.msg.Kind)
	assert.Equal(t, []byte{10}, first.msg.Payload)

	second := waitMessage(t, ch)
	assert.Equal(t, KindVoiceEnd, second.msg.Kind)

	third := waitMessage(t, ch)
	assert.Equal(t, KindVoiceData, third.msg.Kind)
	assert.Equal(t, []byte{13}, third.msg.Payload, "late and duplicate packets are dropped")

	select {
	case r := <-ch:
		t.Fatalf("unexpected delivery %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}
