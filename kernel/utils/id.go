package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewSessionID returns an identifier for one monitoring session, attached to
// host events and exported instruments so reports from the same page load
// can be correlated. The leading segment is the start time in base36, which
// keeps IDs roughly sortable.
func NewSessionID() string {
	return newSessionID(time.Now())
}

func newSessionID(now time.Time) string {
	prefix := strconv.FormatInt(now.UnixMilli(), 36)
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return prefix + "-" + strconv.FormatInt(now.UnixNano()&0xffffffff, 36)
	}
	return prefix + "-" + hex.EncodeToString(suffix[:])
}
