package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMemBytesSuffixes(t *testing.T) {
	cases := map[string]int64{
		"0":     0,
		"1":     1,
		"1b":    1,
		"1k":    1 << 10,
		"1kb":   1 << 10,
		"2m":    2 << 20,
		"2mib":  2 << 20,
		"1g":    1 << 30,
		"1gib":  1 << 30,
		"1t":    1 << 40,
		"1p":    1 << 50,
		" 3 kb": 3 << 10,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseMemBytes(in).Value(), "input %q", in)
	}
}

func TestParseMemBytesNegativeAndBadUnset(t *testing.T) {
	assert.Equal(t, "unset", ParseMemBytes("-5").String())
	assert.Equal(t, "unset", ParseMemBytes("5xyz").String())
	assert.Equal(t, "unset", ParseMemBytes("").String())
}

func TestMemBytesRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1024", "4096"} {
		got := ParseMemBytes(s)
		assert.Equal(t, s, got.String())
	}
}
