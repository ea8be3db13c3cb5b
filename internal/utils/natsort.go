package utils

import (
	"strconv"
	"strings"
	"unicode"
)

// RoomKey is the natural-sort key of a room number: its digits read as an
// integer, then the remaining letters. "2" < "10" < "10A" < "10B" < "B".
type RoomKey struct {
	HasDigits bool
	Number    uint64
	Letters   string
}

// ParseRoomKey splits a room number into its natural-sort key. All digits
// are concatenated into the number; everything else forms the letters part.
func ParseRoomKey(s string) RoomKey {
	var digits, letters strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		} else {
			letters.WriteRune(r)
		}
	}
	k := RoomKey{Letters: letters.String()}
	if digits.Len() > 0 {
		n, err := strconv.ParseUint(digits.String(), 10, 64)
		if err == nil {
			k.HasDigits = true
			k.Number = n
		}
	}
	return k
}

// CompareRooms orders room numbers naturally: numerically by digits, then
// lexicographically by letters. Numbers without digits sort last. Ties are
// broken by the raw string so the order is total.
func CompareRooms(a, b string) int {
	ka, kb := ParseRoomKey(a), ParseRoomKey(b)
	switch {
	case ka.HasDigits && !kb.HasDigits:
		return -1
	case !ka.HasDigits && kb.HasDigits:
		return 1
	case ka.Number < kb.Number:
		return -1
	case ka.Number > kb.Number:
		return 1
	}
	if c := strings.Compare(ka.Letters, kb.Letters); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
