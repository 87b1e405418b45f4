package presence_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightify/internal/presence"
	"insightify/internal/testsupport"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *presence.Registry {
	return presence.NewRegistry(testsupport.GetLogger(),
		5*time.Minute, 10*time.Minute, 5*time.Minute,
		presence.WithClock(clock.Now))
}

func TestRecordAndReadLiveVisitors(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := newTestRegistry(clock)

	registry.RecordPageView(1, "sess-1", "/home", "ua", "1.2.3.4", "de")
	registry.RecordPageView(1, "sess-2", "/pricing", "ua", "5.6.7.8", "us")
	registry.RecordPageView(2, "sess-3", "/other-project", "ua", "9.9.9.9", "fr")

	assert.Equal(t, 2, registry.LiveVisitorCount(1))
	assert.Equal(t, 1, registry.LiveVisitorCount(2))

	visitors := registry.LiveVisitors(1)
	require.Len(t, visitors, 2)
	for _, v := range visitors {
		assert.Equal(t, uint(1), v.ProjectID)
	}

	// A repeat pageview moves the session, it does not duplicate it.
	registry.RecordPageView(1, "sess-1", "/checkout", "ua", "1.2.3.4", "de")
	visitors = registry.LiveVisitors(1)
	require.Len(t, visitors, 2)
	for _, v := range visitors {
		if v.SessionID == "sess-1" {
			assert.Equal(t, "/checkout", v.CurrentPage)
		}
	}
}

func TestActivityWindowBoundary(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := newTestRegistry(clock)

	registry.RecordPageView(1, "sess-1", "/home", "ua", "1.2.3.4", "")

	// 4m59s idle: still live.
	clock.Advance(4*time.Minute + 59*time.Second)
	assert.Equal(t, 1, registry.LiveVisitorCount(1))

	// 5m01s idle: no longer live, but not yet purged.
	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, registry.LiveVisitorCount(1))
	assert.Empty(t, registry.LiveVisitors(1))

	// Activity brings it straight back without re-registration.
	registry.Touch(1, "sess-1")
	assert.Equal(t, 1, registry.LiveVisitorCount(1))
}

func TestSweepPurgesOnlyPastPurgeWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := newTestRegistry(clock)

	registry.RecordPageView(1, "old", "/a", "ua", "", "")
	clock.Advance(6 * time.Minute)
	registry.RecordPageView(1, "idle", "/b", "ua", "", "")
	clock.Advance(4*time.Minute + time.Second) // old: 10m01s, idle: 4m01s

	removed := registry.Sweep()
	assert.Equal(t, 1, removed)

	// idle is still tracked and still live.
	assert.Equal(t, 1, registry.LiveVisitorCount(1))

	// old is gone for good; a new pageview creates a fresh entry.
	registry.Touch(1, "old")
	assert.Equal(t, 1, registry.LiveVisitorCount(1))
	registry.RecordPageView(1, "old", "/a", "ua", "", "")
	assert.Equal(t, 2, registry.LiveVisitorCount(1))
}

func TestSweepSparesRevivedVisitor(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := newTestRegistry(clock)

	registry.RecordPageView(1, "sess-1", "/home", "ua", "", "")
	clock.Advance(11 * time.Minute)

	// Fresh activity right before the sweep: entry must survive.
	registry.Touch(1, "sess-1")
	removed := registry.Sweep()
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, registry.LiveVisitorCount(1))
}

func TestConcurrentRecordAndRead(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := newTestRegistry(clock)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				registry.RecordPageView(1, fmt.Sprintf("sess-%d-%d", w, i), "/p", "ua", "", "")
				registry.LiveVisitorCount(1)
				registry.LiveVisitors(1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 400, registry.LiveVisitorCount(1))
	assert.Equal(t, 0, registry.Sweep())
}

func TestStartStop(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC))
	registry := presence.NewRegistry(testsupport.GetLogger(),
		5*time.Minute, 10*time.Minute, 10*time.Millisecond,
		presence.WithClock(clock.Now))

	registry.Start()
	registry.RecordPageView(1, "sess-1", "/home", "ua", "", "")
	clock.Advance(11 * time.Minute)

	require.Eventually(t, func() bool {
		return registry.TrackedCount() == 0
	}, time.Second, 5*time.Millisecond)

	registry.Stop()
	// Stop again is a no-op.
	registry.Stop()
}
