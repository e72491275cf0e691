package alerts

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// cleanText drops carriage returns, trims and truncates s to maxLen runes.
func cleanText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) > maxLen {
		return string(r[:maxLen])
	}
	return s
}

// newID returns a ULID: a millisecond timestamp plus 80 random bits.
// Uniqueness is best-effort; collisions are not checked.
func newID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}
