// Package presence tracks which visitors are live right now. State is
// in-memory only and rebuilds naturally from traffic after a restart;
// nothing here touches the database.
package presence

import (
	"log/slog"
	"sync"
	"time"
)

// LiveVisitor is one active session as seen by the registry. Values are
// copies; callers can hold them without locking.
type LiveVisitor struct {
	ProjectID    uint      `json:"project_id"`
	SessionID    string    `json:"session_id"`
	CurrentPage  string    `json:"current_page"`
	UserAgent    string    `json:"-"`
	IPAddress    string    `json:"-"`
	Country      string    `json:"country"`
	LastActivity time.Time `json:"last_activity"`
}

type visitorKey struct {
	projectID uint
	sessionID string
}

// Registry keeps the live-visitor table. A visitor counts as live while its
// last activity is within the activity window; the sweeper hard-deletes
// entries once they pass the purge window. Purge must be at least as long
// as activity so a live visitor can never be purged.
type Registry struct {
	mu       sync.RWMutex
	visitors map[visitorKey]*LiveVisitor

	activityWindow time.Duration
	purgeWindow    time.Duration
	sweepInterval  time.Duration

	nowFn  func() time.Time
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option adjusts a Registry at construction time.
type Option func(*Registry)

// WithClock replaces the registry's time source.
func WithClock(nowFn func() time.Time) Option {
	return func(r *Registry) { r.nowFn = nowFn }
}

// NewRegistry builds a registry with the given windows. Start must be called
// before the sweeper runs; RecordPageView and the readers work either way.
func NewRegistry(logger *slog.Logger, activityWindow, purgeWindow, sweepInterval time.Duration, opts ...Option) *Registry {
	r := &Registry{
		visitors:       make(map[visitorKey]*LiveVisitor),
		activityWindow: activityWindow,
		purgeWindow:    purgeWindow,
		sweepInterval:  sweepInterval,
		nowFn:          time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background sweeper. Call it once; pair every Start
// with a Stop.
func (r *Registry) Start() {
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.sweepLoop()
}

// Stop halts the sweeper and waits for it to exit. Safe to call when the
// registry was never started.
func (r *Registry) Stop() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.stopCh = nil
}

func (r *Registry) sweepLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := r.Sweep()
			if removed > 0 {
				r.logger.Debug("swept stale live visitors", slog.Int("removed", removed))
			}
		case <-r.stopCh:
			return
		}
	}
}

// RecordPageView upserts the visitor entry for a session and refreshes its
// activity timestamp. One map write, O(1).
func (r *Registry) RecordPageView(projectID uint, sessionID, pageURL, userAgent, ip, country string) {
	if sessionID == "" {
		return
	}
	now := r.nowFn()

	r.mu.Lock()
	defer r.mu.Unlock()

	key := visitorKey{projectID: projectID, sessionID: sessionID}
	if v, exists := r.visitors[key]; exists {
		v.CurrentPage = pageURL
		v.LastActivity = now
		if country != "" {
			v.Country = country
		}
		return
	}
	r.visitors[key] = &LiveVisitor{
		ProjectID:    projectID,
		SessionID:    sessionID,
		CurrentPage:  pageURL,
		UserAgent:    userAgent,
		IPAddress:    ip,
		Country:      country,
		LastActivity: now,
	}
}

// Touch refreshes a session's activity without changing its page. Used for
// custom events and heartbeats.
func (r *Registry) Touch(projectID uint, sessionID string) {
	if sessionID == "" {
		return
	}
	now := r.nowFn()

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, exists := r.visitors[visitorKey{projectID: projectID, sessionID: sessionID}]; exists {
		v.LastActivity = now
	}
}

// LiveVisitors returns copies of the visitors active within the activity
// window, computed against the clock at call time. Entries past the window
// but not yet swept are filtered out here, so readers never see them.
func (r *Registry) LiveVisitors(projectID uint) []LiveVisitor {
	cutoff := r.nowFn().Add(-r.activityWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]LiveVisitor, 0)
	for key, v := range r.visitors {
		if key.projectID != projectID {
			continue
		}
		if v.LastActivity.Before(cutoff) {
			continue
		}
		live = append(live, *v)
	}
	return live
}

// LiveVisitorCount reports how many visitors are currently live for a
// project.
func (r *Registry) LiveVisitorCount(projectID uint) int {
	cutoff := r.nowFn().Add(-r.activityWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key, v := range r.visitors {
		if key.projectID == projectID && !v.LastActivity.Before(cutoff) {
			count++
		}
	}
	return count
}

// TrackedCount reports how many entries the registry holds across all
// projects, live or not. Metrics and tests use it; the read path does not.
func (r *Registry) TrackedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visitors)
}

// Sweep deletes entries idle past the purge window and returns how many it
// removed. LastActivity is re-read under the write lock, so an entry that
// got traffic between scheduling and deletion survives.
func (r *Registry) Sweep() int {
	cutoff := r.nowFn().Add(-r.purgeWindow)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, v := range r.visitors {
		if v.LastActivity.Before(cutoff) {
			delete(r.visitors, key)
			removed++
		}
	}
	return removed
}
