package metainfo

import (
	"bytes"
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrhouston/gorent/internal/bencode"
)

func buildMetainfo(t *testing.T, pieceLength, length int64, numPieces int) []byte {
	t.Helper()
	pieces := strings.Repeat(strings.Repeat("a", 20), numPieces)
	info := bencode.NewDict().
		Set("name", bencode.Str("output.bin")).
		Set("piece length", bencode.Int(pieceLength)).
		Set("length", bencode.Int(length)).
		Set("pieces", bencode.Str(pieces))
	root := bencode.NewDict().
		Set("announce", bencode.Str("http://tracker.example/announce")).
		Set("info", info)
	return bencode.Encode(root)
}

func TestLoadHappyPath(t *testing.T) {
	raw := buildMetainfo(t, 16384, 16384*3, 3)
	m, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "http://tracker.example/announce", m.Announce)
	require.Equal(t, int64(16384), m.PieceLength)
	require.Equal(t, int64(16384*3), m.TotalSize)
	require.Equal(t, "output.bin", m.OutputName)
	require.Equal(t, 3, m.PieceCount())

	// info-hash must equal SHA1 of the re-encoded info dict (testable
	// property 5 / end-to-end scenario 2).
	v, err := bencode.Decode(raw)
	require.NoError(t, err)
	info, ok := v.Get("info")
	require.True(t, ok)
	want := sha1.Sum(bencode.Encode(info))
	require.Equal(t, want, m.InfoHash)
}

func TestLoadRejectsMultiFile(t *testing.T) {
	info := bencode.NewDict().
		Set("name", bencode.Str("dir")).
		Set("piece length", bencode.Int(16384)).
		Set("length", bencode.Int(0)).
		Set("pieces", bencode.Str(strings.Repeat("a", 20))).
		Set("files", bencode.List(nil))
	root := bencode.NewDict().
		Set("announce", bencode.Str("http://tracker.example/announce")).
		Set("info", info)
	_, err := Load(bytes.NewReader(bencode.Encode(root)))
	require.ErrorIs(t, err, ErrUnsupportedLayout)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	root := bencode.NewDict().Set("announce", bencode.Str("http://tracker.example/announce"))
	_, err := Load(bytes.NewReader(bencode.Encode(root)))
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestPieceBoundsLastPieceShort(t *testing.T) {
	raw := buildMetainfo(t, 16384, 16384*2+100, 3)
	m, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	begin, end := m.PieceBounds(2)
	require.Equal(t, int64(32768), begin)
	require.Equal(t, int64(32868), end)
	require.Equal(t, int64(100), m.PieceSize(2))
}
