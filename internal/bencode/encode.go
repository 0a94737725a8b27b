package bencode

import (
	"bytes"
	"strconv"
)

// Encode renders v in canonical bencode form. Dict keys are emitted in the
// order they were inserted — this is what keeps encode(decode(x)) == x for
// canonical input, which the info-hash computation depends on.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, v)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.integer, 10))
		buf.WriteByte('e')
	case KindBytes:
		buf.WriteString(strconv.Itoa(len(v.bytes)))
		buf.WriteByte(':')
		buf.Write(v.bytes)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			encodeInto(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		for _, e := range v.dict {
			encodeInto(buf, Str(e.key))
			encodeInto(buf, e.val)
		}
		buf.WriteByte('e')
	}
}
