// Package coordinator ties the tracker client, the piece manager, and the
// peer connection pool together: the main loop spec.md §4.6 describes.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jrhouston/gorent/internal/metainfo"
	"github.com/jrhouston/gorent/internal/peerconn"
	"github.com/jrhouston/gorent/internal/piece"
	"github.com/jrhouston/gorent/internal/progress"
	"github.com/jrhouston/gorent/internal/trackerclient"
)

const (
	// MaxConnections is the fixed size of the peer worker pool.
	MaxConnections = 30
	// DefaultPort is the port advertised to the tracker.
	DefaultPort uint16 = 6889
	// pollInterval is how long the main loop sleeps between re-checks when
	// no announce is currently due.
	pollInterval = 5 * time.Second
)

// Coordinator drives one torrent's download end to end.
type Coordinator struct {
	meta    *metainfo.Metainfo
	tracker *trackerclient.Client
	manager *piece.Manager
	queue   chan peerconn.Endpoint
	peerID  [20]byte
	log     *logrus.Entry
	display *progress.Reporter

	lastAnnounce  time.Time
	haveAnnounced bool
	interval      time.Duration
}

// New builds a Coordinator for meta, writing the reconstructed file to
// outputPath.
func New(meta *metainfo.Metainfo, outputPath string, log *logrus.Entry, showProgress bool) (*Coordinator, error) {
	peerID, err := GeneratePeerID()
	if err != nil {
		return nil, fmt.Errorf("coordinator: generating peer id: %w", err)
	}

	tracker, err := trackerclient.New(meta.Announce, meta.InfoHash, peerID, DefaultPort)
	if err != nil {
		return nil, fmt.Errorf("coordinator: building tracker client: %w", err)
	}

	manager, err := piece.New(meta.PieceLength, meta.TotalSize, meta.Pieces, outputPath, log.WithField("component", "piece"))
	if err != nil {
		tracker.Close()
		return nil, fmt.Errorf("coordinator: building piece manager: %w", err)
	}

	return &Coordinator{
		meta:    meta,
		tracker: tracker,
		manager: manager,
		queue:   make(chan peerconn.Endpoint, 4096),
		peerID:  peerID,
		log:     log,
		display: progress.New(meta.TotalSize, showProgress),
		interval: 30 * time.Minute,
	}, nil
}

// Run spawns the peer worker pool and drives the announce loop described in
// spec.md §4.6 until the torrent completes or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.manager.Close()
	defer c.tracker.Close()
	defer c.display.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < MaxConnections; i++ {
		w := peerconn.NewWorker(i, c.queue, c.meta.InfoHash, c.peerID, c.manager, c.log)
		group.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	mainErr := c.mainLoop(gctx)

	cancel()
	close(c.queue)
	_ = group.Wait()
	return mainErr
}

func (c *Coordinator) mainLoop(ctx context.Context) error {
	for {
		if c.manager.Complete() {
			c.log.WithField("size", progress.FormatBytes(c.meta.TotalSize)).Info("torrent downloaded successfully")
			return nil
		}
		select {
		case <-ctx.Done():
			c.log.Info("download cancelled")
			return nil
		default:
		}

		if !c.haveAnnounced || time.Since(c.lastAnnounce) >= c.interval {
			if err := c.announce(ctx); err != nil {
				c.log.WithError(err).Warn("announce failed, will retry next tick")
			}
		} else {
			c.display.Tick(c.manager.BytesDownloaded())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
		}
	}
}

func (c *Coordinator) announce(ctx context.Context) error {
	first := !c.haveAnnounced
	left := c.meta.TotalSize - c.manager.BytesDownloaded()
	resp, err := c.tracker.Announce(ctx, first, 0, c.manager.BytesDownloaded(), left)
	if err != nil {
		return err
	}

	c.drainQueue()
	for _, p := range resp.Peers {
		select {
		case c.queue <- peerconn.Endpoint{IP: p.IP, Port: p.Port}:
		default:
			// queue is generously sized; a full queue means we're already
			// holding far more endpoints than MaxConnections can use.
		}
	}

	c.haveAnnounced = true
	c.lastAnnounce = time.Now()
	if resp.Interval > 0 {
		c.interval = time.Duration(resp.Interval) * time.Second
	}
	c.log.WithFields(logrus.Fields{
		"peers":      len(resp.Peers),
		"interval":   c.interval,
		"seeders":    resp.Seeders,
		"leechers":   resp.Leechers,
		"downloaded": progress.FormatBytes(c.manager.BytesDownloaded()),
		"left":       progress.FormatBytes(left),
	}).Info("announced to tracker")
	return nil
}

func (c *Coordinator) drainQueue() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}
