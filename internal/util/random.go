// Package util provides small helpers shared across BookingPipe components.
package util

import (
	"math/rand/v2"
	"strings"
)

const hexChars = "0123456789abcdef"

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex digits.
// The ids are for log correlation only and are not cryptographically secure.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hex string of the given length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(len(hexChars))])
	}
	return builder.String()
}

// GenerateTurnID returns the id attached to the log lines of one conversation turn.
func GenerateTurnID() string {
	return GenerateRandomID("t_", 8)
}
