// Package metainfo is a typed facade over a decoded bencode metainfo tree:
// announce URL, piece layout, output filename, per-piece digests, and the
// SHA-1 info-hash that identifies the torrent to the tracker and peers.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/jrhouston/gorent/internal/bencode"
)

const hashSize = 20

// Metainfo is the single-file subset of a .torrent descriptor this
// downloader supports.
type Metainfo struct {
	Announce    string
	PieceLength int64
	TotalSize   int64
	OutputName  string
	Pieces      [][hashSize]byte
	InfoHash    [hashSize]byte
}

// Load reads and validates a metainfo file from r.
func Load(r io.Reader) (*Metainfo, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("metainfo: read: %w", err)
	}
	v, err := bencode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if v.Kind() != bencode.KindDict {
		return nil, fmt.Errorf("%w: top-level value is not a dict", ErrMalformedInput)
	}

	announceVal, ok := v.Get("announce")
	if !ok {
		return nil, fmt.Errorf("%w: missing \"announce\"", ErrMalformedInput)
	}
	announce, ok := announceVal.StringVal()
	if !ok {
		return nil, fmt.Errorf("%w: \"announce\" is not a byte string", ErrMalformedInput)
	}

	info, ok := v.Get("info")
	if !ok {
		return nil, fmt.Errorf("%w: missing \"info\"", ErrMalformedInput)
	}
	if info.Kind() != bencode.KindDict {
		return nil, fmt.Errorf("%w: \"info\" is not a dict", ErrMalformedInput)
	}

	if _, multiFile := info.Get("files"); multiFile {
		return nil, fmt.Errorf("%w: multi-file torrents are not supported", ErrUnsupportedLayout)
	}

	name, err := requireString(info, "name")
	if err != nil {
		return nil, err
	}
	pieceLength, err := requireInt(info, "piece length")
	if err != nil {
		return nil, err
	}
	length, err := requireInt(info, "length")
	if err != nil {
		return nil, err
	}
	piecesVal, ok := info.Get("pieces")
	if !ok {
		return nil, fmt.Errorf("%w: missing \"info.pieces\"", ErrMalformedInput)
	}
	piecesRaw, ok := piecesVal.BytesVal()
	if !ok {
		return nil, fmt.Errorf("%w: \"info.pieces\" is not a byte string", ErrMalformedInput)
	}
	if len(piecesRaw)%hashSize != 0 {
		return nil, fmt.Errorf("%w: \"info.pieces\" length %d is not a multiple of %d", ErrMalformedInput, len(piecesRaw), hashSize)
	}
	pieces := make([][hashSize]byte, len(piecesRaw)/hashSize)
	for i := range pieces {
		copy(pieces[i][:], piecesRaw[i*hashSize:(i+1)*hashSize])
	}

	infoHash := sha1.Sum(bencode.Encode(info))

	return &Metainfo{
		Announce:    announce,
		PieceLength: pieceLength,
		TotalSize:   length,
		OutputName:  name,
		Pieces:      pieces,
		InfoHash:    infoHash,
	}, nil
}

func requireString(dict bencode.Value, key string) (string, error) {
	v, ok := dict.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: missing \"info.%s\"", ErrMalformedInput, key)
	}
	s, ok := v.StringVal()
	if !ok {
		return "", fmt.Errorf("%w: \"info.%s\" is not a byte string", ErrMalformedInput, key)
	}
	return s, nil
}

func requireInt(dict bencode.Value, key string) (int64, error) {
	v, ok := dict.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: missing \"info.%s\"", ErrMalformedInput, key)
	}
	n, ok := v.Int64()
	if !ok {
		return 0, fmt.Errorf("%w: \"info.%s\" is not an integer", ErrMalformedInput, key)
	}
	return n, nil
}

// PieceCount returns the number of pieces the torrent is divided into.
func (m *Metainfo) PieceCount() int {
	return len(m.Pieces)
}

// PieceBounds returns the half-open byte range [begin, end) of piece index
// within the reconstructed file, clamped to TotalSize for the last piece.
func (m *Metainfo) PieceBounds(index int) (begin, end int64) {
	begin = int64(index) * m.PieceLength
	end = begin + m.PieceLength
	if end > m.TotalSize {
		end = m.TotalSize
	}
	return begin, end
}

// PieceSize returns the length in bytes of piece index, accounting for a
// shorter final piece.
func (m *Metainfo) PieceSize(index int) int64 {
	begin, end := m.PieceBounds(index)
	return end - begin
}
