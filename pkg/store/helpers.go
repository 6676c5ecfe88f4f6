package store

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// generateID creates a random 24-char hex ID with a time prefix for ordering.
func generateID() string {
	b := make([]byte, 12)
	// First 4 bytes: unix timestamp for natural ordering
	ts := uint32(time.Now().Unix())
	b[0] = byte(ts >> 24)
	b[1] = byte(ts >> 16)
	b[2] = byte(ts >> 8)
	b[3] = byte(ts)
	// Remaining 8 bytes: random
	_, _ = rand.Read(b[4:])
	return hex.EncodeToString(b)
}

// encodeTags flattens tags for backends whose metadata holds strings.
func encodeTags(tags []string) string {
	return strings.Join(tags, ",")
}

func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
