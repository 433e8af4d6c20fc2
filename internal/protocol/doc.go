// Package protocol defines the game client's wire vocabulary.
//
// Outgoing commands and incoming messages are closed sets of tagged
// variants. A Codec turns commands into frames and frames into messages:
//   - JSONCodec writes text frames: {"type": "move_by", "data": {...}}
//   - CBORCodec writes the same envelope as canonical CBOR in binary frames
//
// The connection core treats commands opaquely and only inspects the
// control messages it owns (Pong, AuthAck, AuthReject).
package protocol
