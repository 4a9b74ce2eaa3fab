package normalize

import (
	"math/big"
	"strings"
)

// formatUnits renders a non-negative chain-native integer amount as a decimal
// string with the given number of fractional digits, trailing zeros trimmed.
// Working on the string form avoids any float round-trip.
func formatUnits(v *big.Int, decimals int) string {
	s := v.String()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}

// satsToBTC converts a satoshi amount to a BTC decimal string.
func satsToBTC(sats int64) string {
	return formatUnits(big.NewInt(sats), 8)
}

// parseHexBig decodes a 0x-prefixed hex integer. It fails closed: any
// malformed input returns false and the caller must reject the whole record
// rather than substitute a default.
func parseHexBig(s string) (*big.Int, bool) {
	h := strings.TrimPrefix(s, "0x")
	h = strings.TrimPrefix(h, "0X")
	if h == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, false
	}
	return v, true
}
