// Package trackerclient performs periodic HTTP announces to a BitTorrent
// tracker and decodes the compact peer list it returns.
package trackerclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/jrhouston/gorent/internal/bencode"
)

const peerCompactSize = 6

// Peer is one (ip, port) endpoint returned by the tracker.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the decoded result of one announce.
type Response struct {
	Interval int
	Peers    []Peer

	// Seeders/Leechers mirror the tracker's optional `complete` /
	// `incomplete` counters. Informational only — nothing in peer
	// selection or piece scheduling reads them.
	Seeders  int
	Leechers int
}

// Client issues announces against a single tracker for a single torrent.
type Client struct {
	http        *resty.Client
	announceURL string
	infoHash    [20]byte
	peerID      [20]byte
	port        uint16
}

// New builds a Client for the given announce URL and torrent identity.
func New(announceURL string, infoHash, peerID [20]byte, port uint16) (*Client, error) {
	parsed, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing announce URL: %v", ErrMalformedInput, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported tracker scheme %q (only HTTP trackers are supported)", ErrUnsupported, parsed.Scheme)
	}

	return &Client{
		http:        resty.New(),
		announceURL: announceURL,
		infoHash:    infoHash,
		peerID:      peerID,
		port:        port,
	}, nil
}

// Close releases the underlying HTTP client's idle connections.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// Announce performs one HTTP GET to the tracker and decodes its response.
func (c *Client) Announce(ctx context.Context, first bool, uploaded, downloaded, left int64) (Response, error) {
	u, err := c.buildURL(uploaded, downloaded, left, first)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return Response{}, fmt.Errorf("%w: GET %s: %v", ErrTrackerFailure, c.announceURL, err)
	}
	if resp.StatusCode() != 200 {
		return Response{}, fmt.Errorf("%w: HTTP status %d", ErrTrackerFailure, resp.StatusCode())
	}

	return decodeResponse(resp.Body())
}

func (c *Client) buildURL(uploaded, downloaded, left int64, first bool) (string, error) {
	base, err := url.Parse(c.announceURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	q := url.Values{
		"port":       []string{strconv.Itoa(int(c.port))},
		"uploaded":   []string{strconv.FormatInt(uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(downloaded, 10)},
		"left":       []string{strconv.FormatInt(left, 10)},
		"compact":    []string{"1"},
	}
	if first {
		q.Set("event", "started")
	}
	base.RawQuery = q.Encode()
	base.RawQuery += "&info_hash=" + percentEncode(c.infoHash[:])
	base.RawQuery += "&peer_id=" + percentEncode(c.peerID[:])
	return base.String(), nil
}

func percentEncode(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for _, v := range b {
		out = append(out, '%', hex[v>>4], hex[v&0xF])
	}
	return string(out)
}

func decodeResponse(body []byte) (Response, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	// A bare string body is a failure only if it contains "failure", per
	// the tracker protocol's failure-message convention.
	if v.Kind() == bencode.KindBytes {
		msg, _ := v.StringVal()
		if strings.Contains(msg, "failure") {
			return Response{}, fmt.Errorf("%w: %s", ErrTrackerFailure, msg)
		}
		return Response{}, fmt.Errorf("%w: tracker response is not a dict", ErrMalformedInput)
	}
	if v.Kind() != bencode.KindDict {
		return Response{}, fmt.Errorf("%w: tracker response is not a dict", ErrMalformedInput)
	}

	if reason, ok := v.Get("failure reason"); ok {
		msg, _ := reason.StringVal()
		return Response{}, fmt.Errorf("%w: %s", ErrTrackerFailure, msg)
	}

	interval := 0
	if iv, ok := v.Get("interval"); ok {
		n, _ := iv.Int64()
		interval = int(n)
	}
	seeders, leechers := 0, 0
	if cv, ok := v.Get("complete"); ok {
		n, _ := cv.Int64()
		seeders = int(n)
	}
	if iv, ok := v.Get("incomplete"); ok {
		n, _ := iv.Int64()
		leechers = int(n)
	}

	peersVal, ok := v.Get("peers")
	if !ok {
		return Response{}, fmt.Errorf("%w: missing \"peers\"", ErrMalformedInput)
	}
	if peersVal.Kind() == bencode.KindList {
		return Response{}, fmt.Errorf("%w: dictionary-form peer list is not supported", ErrUnsupported)
	}
	peersRaw, ok := peersVal.BytesVal()
	if !ok {
		return Response{}, fmt.Errorf("%w: \"peers\" is neither a byte string nor a list", ErrMalformedInput)
	}

	peers, err := decodeCompactPeers(peersRaw)
	if err != nil {
		return Response{}, err
	}

	return Response{Interval: interval, Peers: peers, Seeders: seeders, Leechers: leechers}, nil
}

func decodeCompactPeers(raw []byte) ([]Peer, error) {
	if len(raw)%peerCompactSize != 0 {
		return nil, fmt.Errorf("%w: compact peer list length %d is not a multiple of %d", ErrMalformedInput, len(raw), peerCompactSize)
	}
	n := len(raw) / peerCompactSize
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		off := i * peerCompactSize
		ip := make(net.IP, 4)
		copy(ip, raw[off:off+4])
		port := uint16(raw[off+4])<<8 | uint16(raw[off+5])
		peers[i] = Peer{IP: ip, Port: port}
	}
	return peers, nil
}
