// Package transport carries encoded voice between clients.
//
// Two message kinds exist: VOICE_DATA, a length-prefixed encoded frame, and
// VOICE_END, an empty end-of-stream marker. Both are sent unreliable and
// sequenced on the voice ordering channel at low priority: a receiver drops
// anything older than what it has already seen from the same source and
// nothing is retransmitted.
//
// UDPTransport frames each message as an RTP packet:
//
//	t, err := transport.NewUDPTransport(transport.UDPConfig{
//	    ListenAddr: ":7000",
//	    PeerAddr:   "203.0.113.4:7000",
//	    SSRC:       localPlayerID,
//	    ClockRate:  16000,
//	})
//	t.RegisterHandler(func(source uint32, msg transport.Message) {
//	    client.HandleMessage(source, msg)
//	})
//	go t.Serve(ctx)
//
// The SSRC identifies the speaking player, the marker bit flags VOICE_END and
// the payload may be sealed with a shared session key. Loopback implements
// the same Sink interface in memory.
package transport
