package piece

import (
	"bytes"
	"crypto/sha1"
)

// Piece is a fixed-size unit of the torrent: an ordered set of blocks that
// partition [0, length) and a precomputed SHA-1 digest of the whole.
type Piece struct {
	Index          int
	ExpectedDigest [20]byte
	Blocks         []Block
}

func newPiece(index int, digest [20]byte, length int) *Piece {
	return &Piece{
		Index:          index,
		ExpectedDigest: digest,
		Blocks:         blocksForPiece(index, length),
	}
}

// IsComplete reports whether every block has been retrieved.
func (p *Piece) IsComplete() bool {
	for i := range p.Blocks {
		if p.Blocks[i].Status != Retrieved {
			return false
		}
	}
	return true
}

// Data concatenates block payloads in offset order. Only meaningful once
// IsComplete.
func (p *Piece) Data() []byte {
	var buf bytes.Buffer
	for i := range p.Blocks {
		buf.Write(p.Blocks[i].Payload)
	}
	return buf.Bytes()
}

// Validate reports whether the reconstructed payload matches the expected
// digest.
func (p *Piece) Validate() bool {
	sum := sha1.Sum(p.Data())
	return sum == p.ExpectedDigest
}

// Reset returns every block to Missing and drops payload bytes, for reuse
// after a failed hash check.
func (p *Piece) Reset() {
	for i := range p.Blocks {
		p.Blocks[i].Status = Missing
		p.Blocks[i].Payload = nil
	}
}

// firstMissing returns the index of the first Missing block, or -1.
func (p *Piece) firstMissing() int {
	for i := range p.Blocks {
		if p.Blocks[i].Status == Missing {
			return i
		}
	}
	return -1
}

// blockAt finds the block at the given offset.
func (p *Piece) blockAt(offset int) int {
	for i := range p.Blocks {
		if p.Blocks[i].Offset == offset {
			return i
		}
	}
	return -1
}
