// Package bencode implements the bencode encoding used by .torrent files
// and tracker responses: a small typed universe of integers, byte strings,
// lists, and order-preserving dictionaries.
package bencode

import "fmt"

// Kind identifies which bencode type a Value holds.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// entry is one key/value pair of a Dict, kept in insertion order.
type entry struct {
	key string
	val Value
}

// Value is a single decoded bencode value. The zero Value is an integer 0.
type Value struct {
	kind    Kind
	integer int64
	bytes   []byte
	list    []Value
	dict    []entry
}

func Int(i int64) Value    { return Value{kind: KindInt, integer: i} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }
func Str(s string) Value   { return Value{kind: KindBytes, bytes: []byte(s)} }
func List(v []Value) Value { return Value{kind: KindList, list: v} }

// NewDict returns an empty ordered dictionary.
func NewDict() Value { return Value{kind: KindDict} }

func (v Value) Kind() Kind { return v.kind }

// Int64 returns the integer payload, or (0, false) if v is not KindInt.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.integer, true
}

// BytesVal returns the byte-string payload, or (nil, false) if v is not KindBytes.
func (v Value) BytesVal() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// StringVal returns the byte-string payload as a string, or ("", false) if v
// is not KindBytes.
func (v Value) StringVal() (string, bool) {
	b, ok := v.BytesVal()
	if !ok {
		return "", false
	}
	return string(b), true
}

// ListVal returns the list payload, or (nil, false) if v is not KindList.
func (v Value) ListVal() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Get looks up key in a KindDict value, preserving the "first match wins"
// semantics a conforming bencode dict never violates (no duplicate keys).
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.dict {
		if e.key == key {
			return e.val, true
		}
	}
	return Value{}, false
}

// Keys returns the dict's keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindDict {
		return nil
	}
	keys := make([]string, len(v.dict))
	for i, e := range v.dict {
		keys[i] = e.key
	}
	return keys
}

// Set appends or replaces key in a KindDict value, returning the updated
// Value (Value is a small immutable-looking struct but the backing dict
// slice is shared, so Set is only safe on freshly built dictionaries).
func (v Value) Set(key string, val Value) Value {
	if v.kind != KindDict {
		panic(fmt.Sprintf("bencode: Set on non-dict value (kind %d)", v.kind))
	}
	for i, e := range v.dict {
		if e.key == key {
			v.dict[i].val = val
			return v
		}
	}
	v.dict = append(v.dict, entry{key: key, val: val})
	return v
}
