package metainfo

import "errors"

// ErrMalformedInput covers a metainfo tree missing required keys or with
// keys of the wrong bencode type.
var ErrMalformedInput = errors.New("metainfo: malformed input")

// ErrUnsupportedLayout covers metainfo shapes this downloader does not
// implement — multi-file torrents (info.files present) chief among them.
var ErrUnsupportedLayout = errors.New("metainfo: unsupported layout")
