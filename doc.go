// Package gamevoice implements proximity-free game voice chat for a
// multiplayer client.
//
// A Client owns one capture session, which records the local player's
// microphone while push-to-talk is held, and one playback voice per remote
// player. Encoded frames travel as VOICE_DATA messages, and a single
// VOICE_END closes every transmission.
//
// # Getting Started
//
//	b := backend.NewMalgoBackend(nil)
//	if err := b.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Shutdown()
//
//	udp, err := transport.NewUDPTransport(transport.UDPConfig{
//	    ListenAddr: ":22003",
//	    PeerAddr:   "192.0.2.10:22003",
//	    SSRC:       localID,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := gamevoice.NewClient(gamevoice.Options{
//	    Backend:  b,
//	    Sink:     udp,
//	    Settings: config.NewCVars(nil),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.SetLocalPlayer(localID)
//	udp.RegisterHandler(client.HandleMessage)
//
//	client.StartSession(true, 2, 8, 0)
//	client.AddSource(remoteID)
//
// Call Iterate from the game's update loop, typically every 20ms, and
// SetPushToTalk when the bound key changes state.
//
// # Threading
//
// The capture device delivers samples on its own thread. HandleMessage may
// be called from a network goroutine while Iterate runs on the game loop.
// Notifications are raised on the goroutine that caused them, with no
// internal lock held.
package gamevoice
