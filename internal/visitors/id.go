package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// BuildUniqueVisitorId derives an anonymous visitor signature from the
// request fingerprint. The day is part of the hash input, so the same
// visitor maps to a fresh signature after midnight UTC and cannot be
// followed across days. The raw IP and user agent never hit the database.
func BuildUniqueVisitorId(domain, ipAddress, userAgent, salt string) string {
	return buildUniqueVisitorIdAt(time.Now().UTC(), domain, ipAddress, userAgent, salt)
}

func buildUniqueVisitorIdAt(now time.Time, domain, ipAddress, userAgent, salt string) string {
	h := sha256.New()
	for _, part := range []string{now.UTC().Format("2006-01-02"), salt, domain, ipAddress, userAgent} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
