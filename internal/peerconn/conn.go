// Package peerconn implements a single peer connection's lifecycle: the
// handshake, the message loop, and the choke/interested bookkeeping that
// drives a single in-flight block request.
package peerconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jrhouston/gorent/internal/bitfield"
	"github.com/jrhouston/gorent/internal/peerwire"
	"github.com/jrhouston/gorent/internal/piece"
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Endpoint is a dialable peer address.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprintf("%d", e.Port))
}

// Manager is the subset of *piece.Manager a connection needs, so tests can
// substitute a fake.
type Manager interface {
	AddPeer(peerID string, bf bitfield.Bitfield)
	UpdatePeer(peerID string, index int)
	RemovePeer(peerID string)
	NextRequest(peerID string) (*piece.Block, bool)
	BlockReceived(peerID string, pieceIndex, offset int, payload []byte)
	TotalPieces() int
}

// Worker repeatedly pulls an endpoint from a shared queue, runs one peer
// session to completion, and loops back for the next endpoint until ctx is
// cancelled.
type Worker struct {
	id       int
	queue    <-chan Endpoint
	infoHash [20]byte
	peerID   [20]byte
	manager  Manager
	log      *logrus.Entry
}

// NewWorker builds a Worker reading endpoints from queue.
func NewWorker(id int, queue <-chan Endpoint, infoHash, peerID [20]byte, manager Manager, log *logrus.Entry) *Worker {
	return &Worker{id: id, queue: queue, infoHash: infoHash, peerID: peerID, manager: manager, log: log.WithField("worker", id)}
}

// Run dequeues endpoints and drives sessions until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ep, ok := <-w.queue:
			if !ok {
				return
			}
			w.runSession(ctx, ep)
		}
	}
}

func (w *Worker) runSession(ctx context.Context, ep Endpoint) {
	log := w.log.WithField("peer", ep.String())

	conn, err := net.DialTimeout("tcp", ep.String(), dialTimeout)
	if err != nil {
		log.WithError(err).Debug("dial failed")
		return
	}
	defer conn.Close()

	peerIDStr, err := w.handshake(conn)
	if err != nil {
		log.WithError(err).Debug("handshake failed")
		return
	}
	log = log.WithField("peer_id", peerIDStr)

	defer w.manager.RemovePeer(peerIDStr)

	s := &session{
		conn:      conn,
		peerID:    peerIDStr,
		manager:   w.manager,
		log:       log,
		amChoking: true,
	}
	if err := s.run(ctx); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		log.WithError(err).Debug("session ended")
	}
}

// handshake performs the 68-byte exchange and the first bitfield receipt,
// returning the remote's peer-id (used as the manager's peer key).
func (w *Worker) handshake(conn net.Conn) (string, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	req := peerwire.Handshake{InfoHash: w.infoHash, PeerID: w.peerID}
	if _, err := conn.Write(req.Serialize()); err != nil {
		return "", err
	}

	resp, err := peerwire.ReadHandshake(conn)
	if err != nil {
		return "", err
	}
	if resp.InfoHash != w.infoHash {
		return "", fmt.Errorf("%w: info-hash mismatch", peerwire.ErrPeerProtocol)
	}

	bf, err := w.receiveBitfield(conn)
	if err != nil {
		return "", err
	}

	peerIDStr := string(resp.PeerID[:])
	w.manager.AddPeer(peerIDStr, bf)
	return peerIDStr, nil
}

func (w *Worker) receiveBitfield(conn net.Conn) (bitfield.Bitfield, error) {
	msg, err := peerwire.ReadMessage(conn)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.ID != peerwire.MsgBitfield {
		return nil, fmt.Errorf("%w: expected bitfield as first message", peerwire.ErrPeerProtocol)
	}
	return bitfield.Bitfield(msg.Payload), nil
}
