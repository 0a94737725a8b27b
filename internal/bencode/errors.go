package bencode

import "errors"

// ErrMalformedInput is returned for any bencode stream that does not parse:
// an unknown token, a truncated length or container, or a non-numeric length.
var ErrMalformedInput = errors.New("bencode: malformed input")
