// Package protocol implements the blospray wire protocol.
//
// A connection carries a single ordered byte stream in both directions.
// Structured messages are framed with a 4-byte little-endian length:
//
//	┌──────────────────────────────┬───────────────────────────────┐
//	│ Body Length                  │ Body                          │
//	│ (4 bytes, little-endian)     │ (Body Length bytes)           │
//	└──────────────────────────────┴───────────────────────────────┘
//
// Raw payloads (vertex buffers, framebuffers, EXR files, bounding meshes)
// follow the structured message that announces them and carry no header of
// their own. Their size is derived from counts in that message.
//
// # Encoding
//
//   - Fixed-width integers and floats: little-endian
//   - Strings: varint length + UTF-8 bytes
//   - Booleans: one byte, 0x00 or 0x01
//   - Float arrays: varint count + float32 values
//
// # Client Messages
//
// Every client command is a ClientMessage carrying a MessageType and up to
// three unsigned and two string operands. Commands that need more data are
// followed by a dedicated body message (CameraSettings, UpdateObject, ...).
//
// # Server Messages
//
// The server replies with HelloResult, ServerStateResult, QueryBoundResult,
// GenerateFunctionResult and RenderResult.
//
// # Usage
//
//	if err := protocol.WriteMessage(conn, &protocol.ClientMessage{
//	    Type:      protocol.MsgHello,
//	    UintValue: protocol.Version,
//	}); err != nil {
//	    return err
//	}
//
//	var res protocol.HelloResult
//	if err := protocol.ReadMessage(conn, &res); err != nil {
//	    return err
//	}
package protocol
