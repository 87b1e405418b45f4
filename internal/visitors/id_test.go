package visitors

import (
	"testing"
	"time"
)

func TestBuildUniqueVisitorId(t *testing.T) {
	day := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	a := buildUniqueVisitorIdAt(day, "example.com", "192.168.1.1", "Mozilla/5.0", "key")
	b := buildUniqueVisitorIdAt(day, "example.com", "192.168.1.1", "Mozilla/5.0", "key")
	if a != b {
		t.Errorf("same inputs on the same day should produce the same signature")
	}

	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	otherIP := buildUniqueVisitorIdAt(day, "example.com", "192.168.1.2", "Mozilla/5.0", "key")
	if a == otherIP {
		t.Errorf("different IPs must not collide")
	}

	nextDay := buildUniqueVisitorIdAt(day.AddDate(0, 0, 1), "example.com", "192.168.1.1", "Mozilla/5.0", "key")
	if a == nextDay {
		t.Errorf("signature must rotate at midnight UTC")
	}
}
