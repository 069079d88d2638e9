package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Namespace derives the persistent cache name for a conference and an optional
// signed-in user. The same inputs always give the same name; a different user or
// conference always gives a different one. The user id is hashed so the name is
// filesystem-safe and does not leak the identifier.
func Namespace(conference, userID string) string {
	name := sanitize(conference)
	if name != conference {
		// Distinct ids that sanitize alike, such as a.b and a/b, keep distinct names.
		sum := blake2b.Sum256([]byte(conference))
		name += "-" + hex.EncodeToString(sum[:4])
	}
	if userID == "" {
		return name
	}
	sum := blake2b.Sum256([]byte(userID))
	return name + "-" + hex.EncodeToString(sum[:16])
}

// DatabaseName is the on-device cache file name for Namespace(conference, userID).
func DatabaseName(conference, userID string) string {
	return Namespace(conference, userID) + ".db"
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
