// Package transport moves framed protocol messages and raw payloads over a
// client connection.
//
// Two implementations share the Conn interface: StreamConn wraps any
// net.Conn (TCP in production, net.Pipe in tests) and WebSocketConn wraps a
// gorilla/websocket connection, treating the binary messages as one ordered
// byte stream. Every send and receive moves the full byte count or fails;
// partial transfers are never surfaced.
package transport
