package notifications

import (
	"fmt"
	"math"
	"strconv"
)

// ShortenCount renders large counts compactly for the badge
func ShortenCount(n int) string {
	switch {
	case n < 1e4:
		return strconv.Itoa(n)
	case n < 1e6:
		return fmt.Sprintf("%dk", int(math.Floor(float64(n)/1e3+0.5)))
	default:
		return fmt.Sprintf("%dm", int(math.Floor(float64(n)/1e6+0.5)))
	}
}

// CapWithPlus renders n, or "cap+" when n is past the cap
func CapWithPlus(n, limit int) string {
	if n > limit {
		return fmt.Sprintf("%d+", limit)
	}
	return strconv.Itoa(n)
}

// Plural appends an s to word unless n is 1. With prepend the number leads.
func Plural(n int, word string, prepend bool) string {
	if n != 1 {
		word += "s"
	}
	if prepend {
		return fmt.Sprintf("%d %s", n, word)
	}
	return word
}
