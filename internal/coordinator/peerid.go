package coordinator

import (
	"crypto/rand"
	"math/big"
)

// peerIDPrefix is the required Azureus-style client identifier: "PC",
// version "0001".
const peerIDPrefix = "-PC0001-"

// GeneratePeerID produces the 20-byte ASCII peer-id spec.md §6 requires:
// the fixed 8-byte prefix followed by 12 random decimal digits.
func GeneratePeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], peerIDPrefix)
	for i := len(peerIDPrefix); i < 20; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return id, err
		}
		id[i] = '0' + byte(n.Int64())
	}
	return id, nil
}
