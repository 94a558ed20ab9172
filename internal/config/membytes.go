package config

import (
	"fmt"
	"strconv"
	"strings"
)

// MemBytes decodes a docker-style memory limit: "<int>" (bytes) or
// "<int><suffix>" with suffix in {b, k/kb, m/mb/mib, g/gb/gib, t/tb/tib,
// p/pb/pib}, base-1024. Negative or overflowing values decode to Unset
// (-1); Value() reports Unset as 0 and String() renders it as "unset".
type MemBytes int64

var unitMultiplier = map[string]int64{
	"b":   1,
	"k":   1 << 10,
	"kb":  1 << 10,
	"m":   1 << 20,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1 << 40,
	"tib": 1 << 40,
	"p":   1 << 50,
	"pb":  1 << 50,
	"pib": 1 << 50,
}

// Unset is the sentinel value for "no limit / unparseable".
const Unset MemBytes = -1

// ParseMemBytes decodes s per the suffix table above. Negative or
// overflowing values, and anything unparseable, decode to Unset.
func ParseMemBytes(s string) MemBytes {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unset
	}
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') {
		i++
	}
	if i == 0 {
		return Unset
	}
	numPart := s[:i]
	suffix := strings.ToLower(strings.TrimSpace(s[i:]))

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return Unset
	}

	mult := int64(1)
	if suffix != "" {
		m, ok := unitMultiplier[suffix]
		if !ok {
			return Unset
		}
		mult = m
	}

	v := n * mult
	if mult != 0 && v/mult != n {
		return Unset // overflow
	}
	return MemBytes(v)
}

// Value returns the number of bytes, or 0 if unset.
func (m MemBytes) Value() int64 {
	if m < 0 {
		return 0
	}
	return int64(m)
}

// String renders the value, or "unset" when negative.
func (m MemBytes) String() string {
	if m < 0 {
		return "unset"
	}
	return fmt.Sprintf("%d", int64(m))
}

// UnmarshalText implements encoding.TextUnmarshaler so BurntSushi/toml
// can decode both bare integers and suffixed strings into MemBytes.
func (m *MemBytes) UnmarshalText(text []byte) error {
	*m = ParseMemBytes(string(text))
	return nil
}
