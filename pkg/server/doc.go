// Package server runs the render server: it accepts client connections,
// drives the render loop of the active session and publishes frames.
//
// # Connections
//
// The first message on a connection decides its role. HELLO with the
// matching protocol version starts a session; only one session is active
// at a time and the scene it builds outlives the connection. A connection
// opening with REQUEST_RENDER_OUTPUT becomes the render-output socket of
// the active session and receives the results of interactive renders.
// Anything else gets a failed HelloResult. A message that cannot be decoded
// closes the connection, after a failed result for the commands that have
// one.
//
// # Render loop
//
// A session reads one command at a time. Commands that change the scene or
// settings first drain the render: the in-flight frame is canceled, waited
// for and released, the full-resolution framebuffer and the one it used are
// marked for recreation and a CANCELED result is sent. Queries, CANCEL_RENDERING, BYE and QUIT do not
// drain.
//
// START_RENDERING in final mode renders samples 1..n at full resolution
// and streams an EXR file with every update_rate-th frame and the last
// one. In interactive mode the first sample is rendered at the requested
// reduction factor, which is halved after every frame; at full resolution
// the remaining samples follow. Interactive frames carry raw RGBA float32
// pixels with the origin at the lower left.
//
// # Admin
//
// AdminHandler exposes /healthz, /metrics, /state and /ws, the last one
// carrying the client protocol over a WebSocket.
package server
