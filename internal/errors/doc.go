// Package errors provides coded, classified errors for the blospray server.
//
// Every failure that reaches a client (a GenerateFunctionResult message, a
// failed HelloResult) or the command line carries a stable code and a kind:
//
//   - protocol: version mismatch, malformed framing, unexpected messages
//   - transport: socket read/write failures, peer closed
//   - parameter: plugin parameter validation failures
//   - plugin: plugin module missing, symbol missing, generate failed
//   - binding: object references missing or mismatched data
//   - invariant: malformed meshes, transfer functions and similar input
//   - renderer: errors reported by the ray tracer device
//   - config: invalid configuration
//
// # Error Codes
//
// Codes are grouped by kind (B1xx protocol, B2xx transport, B3xx parameter,
// B4xx plugin, B5xx binding, B6xx invariant, B7xx renderer, B8xx config).
//
// # Usage
//
//	err := errors.New("B501").
//	    WithDetail(fmt.Sprintf("object %q links to %q", name, link))
//
//	if errors.KindOf(err) == errors.KindBinding {
//	    logger.Warn("rejected object update", "error", err)
//	}
package errors
