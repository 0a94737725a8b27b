package trackerclient

import "errors"

// ErrTrackerFailure covers a non-200 HTTP status, a transport failure, or a
// tracker response body carrying "failure reason". Logged by the
// coordinator; retried on the next announce tick.
var ErrTrackerFailure = errors.New("trackerclient: tracker failure")

// ErrUnsupported covers a dictionary-form peer list, which this downloader
// (like the original it was ported from) does not implement.
var ErrUnsupported = errors.New("trackerclient: unsupported response shape")

// ErrMalformedInput covers a tracker body that doesn't decode as bencode,
// or decodes to a shape missing the fields a response must carry.
var ErrMalformedInput = errors.New("trackerclient: malformed response")
