// Package ws implements the real-time presence and broadcast core of huddle.
//
// # Features
//
//   - Handshake gate: every connection presents a credential before it is admitted
//   - Connection registry indexed by connection id and by principal
//   - Room membership with implicit rooms and per-room / per-connection limits
//   - Dispatcher routing client frames to room, principal or global scope
//   - Presence events (room.presence.joined / room.presence.left) on membership changes
//   - Lifecycle bus for observability (connection.opened, room.joined, ...)
//   - Slow consumers are skipped, never allowed to block a broadcast
//   - Graceful shutdown closing every connection with 1001
//
// # Basic Usage
//
//	verifier, err := auth.NewJWTVerifier(auth.JWTConfig{Secret: secret})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hub, err := ws.NewHub(verifier,
//	    ws.WithMaxConnections(10000),
//	    ws.WithHandshakeTimeout(5*time.Second),
//	    ws.WithCheckOriginWhitelist([]string{"https://example.com"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/ws", hub)
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	hub.Shutdown(ctx)
//
// # Wire Format
//
// Clients send frames:
//
//	{"kind": "join_room",    "roomId": "general"}
//	{"kind": "room.message", "roomId": "general", "payload": {"text": "hi"}}
//	{"kind": "room.typing",  "roomId": "general", "payload": {"isTyping": true}}
//
// The server delivers events:
//
//	{"id": "...", "kind": "room.message", "senderId": "alice", "senderName": "Alice",
//	 "roomId": "general", "payload": {"text": "hi"}, "timestamp": "2026-03-01T00:30:00Z"}
//
// Rejected frames produce an "error" event to the sender only. Repeated
// invalid frames close the connection with 4400.
//
// # Server Side Delivery
//
// Service principals can push through the hub directly:
//
//	hub.Notify(ctx, ws.SystemPrincipal, "alice", "order.shipped", data)
//	hub.Announce(ctx, ws.SystemPrincipal, "maintenance", data)
//
// # Concurrency Safety
//
//   - Registry and RoomManager each guard their indexes with a sync.RWMutex
//   - A connection is marked closed before it leaves the registry, so no
//     event is enqueued after teardown starts
//   - Each connection has one reader and one writer goroutine; per-sender
//     ordering follows from the FIFO send queue
package ws
