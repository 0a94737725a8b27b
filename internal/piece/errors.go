package piece

import "errors"

// ErrHashMismatch is recovered locally: the offending piece is reset to
// all-Missing blocks and re-entered into selection. Never returned from a
// public Manager method — it is logged, not propagated.
var ErrHashMismatch = errors.New("piece: hash mismatch")
