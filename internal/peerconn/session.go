package peerconn

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jrhouston/gorent/internal/peerwire"
)

const messageReadTimeout = 2 * time.Minute

// session runs the message loop for one already-handshaken connection.
// Exactly one block request is kept in flight at a time (spec's simplified
// backpressure rule — no pipelining).
type session struct {
	conn    net.Conn
	peerID  string
	manager Manager
	log     *logrus.Entry

	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool

	requestOutstanding bool
}

func (s *session) run(ctx context.Context) error {
	s.peerChoking = true
	if err := s.sendInterested(); err != nil {
		return err
	}
	s.amInterested = true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !s.peerChoking && !s.requestOutstanding {
			if blk, ok := s.manager.NextRequest(s.peerID); ok {
				if err := s.sendRequest(blk.PieceIndex, blk.Offset, blk.Length); err != nil {
					return err
				}
				s.requestOutstanding = true
			}
		}

		s.conn.SetReadDeadline(time.Now().Add(messageReadTimeout))
		msg, err := peerwire.ReadMessage(s.conn)
		if err != nil {
			return err
		}
		if msg == nil {
			continue // keep-alive
		}

		if err := s.handle(msg); err != nil {
			return err
		}
	}
}

func (s *session) handle(msg *peerwire.Message) error {
	switch msg.ID {
	case peerwire.MsgChoke:
		s.peerChoking = true
	case peerwire.MsgUnchoke:
		s.peerChoking = false
	case peerwire.MsgInterested:
		s.peerInterested = true
	case peerwire.MsgNotInterested:
		s.peerInterested = false
	case peerwire.MsgHave:
		index, err := peerwire.ParseHave(msg)
		if err != nil {
			return err
		}
		s.manager.UpdatePeer(s.peerID, index)
	case peerwire.MsgBitfield:
		return fmt.Errorf("%w: unexpected second bitfield message", peerwire.ErrPeerProtocol)
	case peerwire.MsgPiece:
		index, begin, data, err := peerwire.ParsePiece(msg)
		if err != nil {
			return err
		}
		s.requestOutstanding = false
		s.manager.BlockReceived(s.peerID, index, begin, append([]byte(nil), data...))
	case peerwire.MsgRequest, peerwire.MsgCancel:
		// We never unchoke remote peers (no seeding support), so these are
		// tolerated but never acted on.
	default:
		s.log.WithField("id", msg.ID).Debug("ignoring unknown message id")
	}
	return nil
}

func (s *session) sendInterested() error {
	_, err := s.conn.Write((&peerwire.Message{ID: peerwire.MsgInterested}).Serialize())
	return err
}

func (s *session) sendRequest(index, begin, length int) error {
	_, err := s.conn.Write(peerwire.FormatRequest(index, begin, length).Serialize())
	return err
}
