package peerwire

import (
	"fmt"
	"io"
)

const protocolString = "BitTorrent protocol"

// Handshake is the fixed 68-byte exchange that opens a peer session. The
// reserved field is always 8 zero bytes — no extensions are negotiated.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize renders the handshake for writing to the wire.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(protocolString))
	cursor := 0
	buf[cursor] = byte(len(protocolString))
	cursor++
	cursor += copy(buf[cursor:], protocolString)
	cursor += 8 // reserved, all zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and parses a handshake from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Handshake{}, fmt.Errorf("%w: reading pstrlen: %v", ErrPeerProtocol, err)
	}
	pstrlen := int(lenBuf[0])
	if pstrlen == 0 {
		return Handshake{}, fmt.Errorf("%w: zero-length protocol string", ErrPeerProtocol)
	}

	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Handshake{}, fmt.Errorf("%w: reading handshake body: %v", ErrPeerProtocol, err)
	}

	var h Handshake
	cursor := pstrlen + 8
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return h, nil
}
