package peerwire

import "errors"

// ErrPeerProtocol covers a bad handshake, an over-long frame, or any other
// violation of the wire protocol. Per-connection fatal.
var ErrPeerProtocol = errors.New("peerwire: protocol violation")
