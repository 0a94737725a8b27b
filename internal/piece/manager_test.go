package piece

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrhouston/gorent/internal/bitfield"
)

func newTestManager(t *testing.T, numPieces int, pieceLength int64) (*Manager, [][20]byte) {
	t.Helper()
	dir := t.TempDir()
	hashes := make([][20]byte, numPieces)
	for i := range hashes {
		data := make([]byte, pieceLength)
		for j := range data {
			data[j] = byte(i)
		}
		hashes[i] = pieceDigest(data)
	}
	m, err := New(pieceLength, pieceLength*int64(numPieces), hashes, dir+"/out.bin", nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, hashes
}

func allOnes(numPieces int) bitfield.Bitfield {
	bf := bitfield.New(numPieces)
	for i := 0; i < numPieces; i++ {
		bf.SetPiece(i)
	}
	return bf
}

// Scenario 3: single-peer happy path.
func TestSinglePeerHappyPath(t *testing.T) {
	const blockLen = BlockSize
	m, _ := newTestManager(t, 1, blockLen)
	m.AddPeer("A", allOnes(1))

	blk, ok := m.NextRequest("A")
	require.True(t, ok)
	require.Equal(t, 0, blk.PieceIndex)
	require.Equal(t, 0, blk.Offset)
	require.Equal(t, blockLen, blk.Length)

	data := make([]byte, blockLen)
	for i := range data {
		data[i] = 0
	}
	m.BlockReceived("A", 0, 0, data)

	require.True(t, m.Complete())
	content, err := os.ReadFile(m.file.Name())
	require.NoError(t, err)
	require.Equal(t, data, content[:blockLen])
}

// Scenario 4: hash failure recovery.
func TestHashFailureRecovery(t *testing.T) {
	const blockLen = BlockSize
	m, _ := newTestManager(t, 1, blockLen)
	m.AddPeer("A", allOnes(1))

	blk, ok := m.NextRequest("A")
	require.True(t, ok)
	require.Equal(t, 0, blk.PieceIndex)

	bad := make([]byte, blockLen)
	for i := range bad {
		bad[i] = 0xFF
	}
	m.BlockReceived("A", 0, 0, bad)
	require.False(t, m.Complete())

	blk2, ok := m.NextRequest("A")
	require.True(t, ok)
	require.Equal(t, 0, blk2.PieceIndex)
	require.Equal(t, 0, blk2.Offset)
}

// Scenario 5: timeout re-issue.
func TestTimeoutReissue(t *testing.T) {
	m, _ := newTestManager(t, 8, BlockSize)
	start := time.Unix(0, 0)
	m.clock = func() time.Time { return start }

	peerA := allOnes(8)
	peerB := bitfield.New(8)
	peerB.SetPiece(7)
	m.AddPeer("A", peerA)
	m.AddPeer("B", peerB)

	// One block per piece at this piece length, so each call claims a
	// whole new piece; piece 7 is the only one B also has (count 2), so
	// rarest-first claims it last: the 8th call claims piece 7 for peer A.
	// B advertises only piece 7, so of the eight expired requests the one
	// on piece 7 is the one re-issued to B.
	var blk *Block
	for i := 0; i < 8; i++ {
		var ok bool
		blk, ok = m.NextRequest("A")
		require.True(t, ok)
	}
	require.Equal(t, 7, blk.PieceIndex)
	require.Equal(t, 0, blk.Offset)

	m.clock = func() time.Time { return start.Add(600_001 * time.Millisecond) }
	reissued, ok := m.NextRequest("B")
	require.True(t, ok)
	require.Equal(t, 7, reissued.PieceIndex)
	require.Equal(t, 0, reissued.Offset)
}

// Scenario 6: rarest-first.
func TestRarestFirst(t *testing.T) {
	m, _ := newTestManager(t, 3, BlockSize)

	bfP1 := bitfield.New(3)
	bfP1.SetPiece(0)
	bfP1.SetPiece(1)
	bfP1.SetPiece(2)

	bfP2 := bitfield.New(3)
	bfP2.SetPiece(0)
	bfP2.SetPiece(1)

	bfP3 := bitfield.New(3)
	bfP3.SetPiece(0)

	m.AddPeer("P1", bfP1)
	m.AddPeer("P2", bfP2)
	m.AddPeer("P3", bfP3)

	blk, ok := m.NextRequest("P1")
	require.True(t, ok)
	require.Equal(t, 2, blk.PieceIndex)
}

func TestNextRequestUnknownPeer(t *testing.T) {
	m, _ := newTestManager(t, 1, BlockSize)
	_, ok := m.NextRequest("ghost")
	require.False(t, ok)
}

func TestNextRequestNeverReturnsUnadvertisedPiece(t *testing.T) {
	m, _ := newTestManager(t, 2, BlockSize)
	bf := bitfield.New(2)
	bf.SetPiece(1)
	m.AddPeer("A", bf)
	blk, ok := m.NextRequest("A")
	require.True(t, ok)
	require.Equal(t, 1, blk.PieceIndex)
}

func TestPartitionsDisjointAndComplete(t *testing.T) {
	m, _ := newTestManager(t, 4, BlockSize)
	bf := allOnes(4)
	m.AddPeer("A", bf)

	for i := 0; i < 4; i++ {
		m.NextRequest("A")
	}

	m.mu.Lock()
	total := len(m.missingSet) + len(m.ongoingSet) + len(m.haveSet)
	for idx := range m.ongoingSet {
		require.False(t, m.missingSet[idx])
		require.False(t, m.haveSet[idx])
	}
	m.mu.Unlock()
	require.Equal(t, 4, total)
}
