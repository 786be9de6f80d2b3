package tracker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rimo-de/attend-academy-timekeeper/internal/repository"
)

// Registry owns one Tracker per user. Trackers are created lazily, loading
// their cached state on first use, and dropped when the user's session ends
// so no stale state survives an identity switch.
type Registry struct {
	repo       repository.AttendanceRepository
	recentSize int
	log        logrus.FieldLogger

	mu       sync.Mutex
	trackers map[int64]*Tracker
}

func NewRegistry(repo repository.AttendanceRepository, recentSize int, log logrus.FieldLogger) *Registry {
	return &Registry{
		repo:       repo,
		recentSize: recentSize,
		log:        log,
		trackers:   make(map[int64]*Tracker),
	}
}

// ForUser returns the user's tracker, creating and loading it on first use.
// The initial load completes before the tracker is handed out, so a mutation
// through one caller can never be overwritten by another caller's load.
func (r *Registry) ForUser(ctx context.Context, userID int64) *Tracker {
	r.mu.Lock()
	t, ok := r.trackers[userID]
	if !ok {
		t = New(userID, r.repo, r.recentSize, r.log.WithField("user_id", userID))
		r.trackers[userID] = t
	}
	r.mu.Unlock()

	t.loadOnce.Do(func() { t.Load(ctx) })
	return t
}

// Drop discards the user's tracker and its cached state.
func (r *Registry) Drop(userID int64) {
	r.mu.Lock()
	t, ok := r.trackers[userID]
	if ok {
		delete(r.trackers, userID)
	}
	r.mu.Unlock()

	if ok {
		t.Reset()
	}
}
