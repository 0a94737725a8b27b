package bencode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	in := []byte("d3:cow3:moo4:spam4:eggse")
	v, err := Decode(in)
	require.NoError(t, err)
	require.Equal(t, in, Encode(v))
}

func TestDecodeNegativeInt(t *testing.T) {
	v, err := Decode([]byte("i-42e"))
	require.NoError(t, err)
	n, ok := v.Int64()
	require.True(t, ok)
	require.Equal(t, int64(-42), n)
}

func TestDecodeList(t *testing.T) {
	v, err := Decode([]byte("l4:spam4:eggse"))
	require.NoError(t, err)
	items, ok := v.ListVal()
	require.True(t, ok)
	require.Len(t, items, 2)
	s0, _ := items[0].StringVal()
	s1, _ := items[1].StringVal()
	require.Equal(t, "spam", s0)
	require.Equal(t, "eggs", s1)
}

func TestDecodeDictPreservesOrder(t *testing.T) {
	v, err := Decode([]byte("d3:zoo3:cat3:abc3:dog3:ant3:ante"))
	require.NoError(t, err)
	require.Equal(t, []string{"zoo", "abc", "ant"}, v.Keys())
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"x",
		"i",
		"ie",
		"5:abc",
		"l4:spam",
		"d3:keye",
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		require.Error(t, err, "input %q should fail", c)
	}
}

func TestEncodeInt(t *testing.T) {
	require.Equal(t, []byte("i42e"), Encode(Int(42)))
	require.Equal(t, []byte("i-7e"), Encode(Int(-7)))
}

func TestEncodeDictOrder(t *testing.T) {
	d := NewDict().Set("b", Int(1)).Set("a", Int(2))
	require.Equal(t, []byte("d1:bi1e1:ai2ee"), Encode(d))
}

func TestSetReplacesExistingKey(t *testing.T) {
	d := NewDict().Set("a", Int(1)).Set("a", Int(2))
	require.Equal(t, []string{"a"}, d.Keys())
	v, ok := d.Get("a")
	require.True(t, ok)
	n, _ := v.Int64()
	require.Equal(t, int64(2), n)
}
