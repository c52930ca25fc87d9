package server

import (
	"math/rand"
	"strings"
)

const roomKeyLength = 6

// Lowercase alphanumerics with ambiguous characters removed.
const roomKeyCharset = "abcdefghjkmnpqrstuvwxyz23456789"

// GenerateRoomKey returns a random room key not already in use.
// taken reports whether a candidate key is occupied.
func GenerateRoomKey(taken func(string) bool) string {
	for {
		b := make([]byte, roomKeyLength)
		for i := range b {
			b[i] = roomKeyCharset[rand.Intn(len(roomKeyCharset))]
		}
		key := string(b)
		if taken == nil || !taken(key) {
			return key
		}
	}
}

// NormalizeRoomKey lowercases and trims a client-supplied room key.
func NormalizeRoomKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ValidateRoomKey reports whether a normalized key is acceptable:
// 3 to 16 characters, ASCII letters and digits only.
func ValidateRoomKey(key string) bool {
	if len(key) < 3 || len(key) > 16 {
		return false
	}
	for _, c := range key {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
