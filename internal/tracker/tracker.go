package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
	"github.com/rimo-de/attend-academy-timekeeper/internal/repository"
)

var (
	// ErrAlreadyCheckedIn is the no-op result of checking in when a record
	// already exists for today, regardless of its checkout state.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrAlreadyCheckedOut is the no-op result of checking out twice.
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	// ErrNotCheckedIn is the no-op result of checking out with no record today.
	ErrNotCheckedIn = errors.New("not checked in today")
	// ErrBusy rejects a mutation while another is still in flight.
	ErrBusy = errors.New("attendance operation already in progress")
)

// Tracker owns one user's attendance state: the record for the current day
// and a bounded newest-first window of recent records. Both are a transient
// cache of the repository's state and can always be rebuilt from it.
//
// Check-in and check-out persist first and mutate cached state only after the
// repository confirms, so a failed write leaves the tracker unchanged. The
// busy flag serializes the two mutations: a second call while one is in
// flight is rejected rather than raced.
type Tracker struct {
	userID     int64
	repo       repository.AttendanceRepository
	recentSize int
	log        logrus.FieldLogger
	now        func() time.Time

	loadOnce sync.Once

	mu     sync.Mutex
	busy   bool
	today  *domain.AttendanceRecord
	recent []domain.AttendanceRecord
}

func New(userID int64, repo repository.AttendanceRepository, recentSize int, log logrus.FieldLogger) *Tracker {
	if recentSize <= 0 {
		recentSize = 14
	}
	return &Tracker{
		userID:     userID,
		repo:       repo,
		recentSize: recentSize,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Load populates today's record and the recent window from the repository.
// A failed load is logged and treated as empty state, never fatal.
func (t *Tracker) Load(ctx context.Context) {
	today := domain.DayKey(t.now())

	record, err := t.repo.GetByUserAndDate(ctx, t.userID, today)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		t.log.WithError(err).Warn("load today record, starting empty")
		record = nil
	}

	recent, err := t.repo.ListRecent(ctx, t.userID, t.recentSize)
	if err != nil {
		t.log.WithError(err).Warn("load recent records, starting empty")
		recent = nil
	}

	t.mu.Lock()
	t.today = record
	t.recent = recent
	t.mu.Unlock()
}

// CheckIn creates today's record. It is a no-op when a record already exists
// for today, and leaves state untouched when persistence fails.
func (t *Tracker) CheckIn(ctx context.Context) (*domain.AttendanceRecord, error) {
	now := t.now()
	today := domain.DayKey(now)

	if err := t.acquire(today); err != nil {
		return nil, err
	}

	record := &domain.AttendanceRecord{
		UserID:      t.userID,
		Date:        today,
		CheckInTime: now,
	}
	err := t.repo.Insert(ctx, record)

	if errors.Is(err, repository.ErrDuplicateRecord) {
		// Today's record already exists in the store but not in the cache;
		// pick it up so IsCheckedIn reflects the persisted state.
		existing, getErr := t.repo.GetByUserAndDate(ctx, t.userID, today)

		t.mu.Lock()
		defer t.mu.Unlock()
		t.busy = false
		if getErr == nil {
			t.adoptLocked(existing)
		}
		return nil, ErrAlreadyCheckedIn
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false

	if err != nil {
		return nil, err
	}

	t.today = record
	t.recent = append([]domain.AttendanceRecord{*record}, t.recent...)
	if len(t.recent) > t.recentSize {
		t.recent = t.recent[:t.recentSize]
	}
	return record, nil
}

// CheckOut closes today's record. It is a no-op when there is nothing to
// close or the record is already closed.
func (t *Tracker) CheckOut(ctx context.Context) (*domain.AttendanceRecord, error) {
	now := t.now()
	today := domain.DayKey(now)

	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	// A cached record from a previous day is not today's record; the day
	// rolled over with no check-in yet.
	if t.today == nil || t.today.Date != today {
		t.mu.Unlock()
		return nil, ErrNotCheckedIn
	}
	if t.today.CheckOutTime != nil {
		t.mu.Unlock()
		return nil, ErrAlreadyCheckedOut
	}
	id := t.today.ID
	t.busy = true
	t.mu.Unlock()

	updated, err := t.repo.SetCheckOut(ctx, id, now)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false

	if err != nil {
		return nil, err
	}

	t.today = updated
	for i := range t.recent {
		if t.recent[i].ID == updated.ID {
			t.recent[i] = *updated
			break
		}
	}
	return updated, nil
}

// FetchByDateRange returns the user's records with date in [from, to]
// inclusive, newest first. Missing bounds yield an empty result, not an
// error. The read never touches cached state.
func (t *Tracker) FetchByDateRange(ctx context.Context, from, to string) ([]domain.AttendanceRecord, error) {
	if from == "" || to == "" {
		return nil, nil
	}
	if _, err := domain.ParseDayKey(from); err != nil {
		return nil, err
	}
	if _, err := domain.ParseDayKey(to); err != nil {
		return nil, err
	}
	return t.repo.ListByUserAndDateRange(ctx, t.userID, from, to)
}

// Today returns the cached record for the current day, if any.
func (t *Tracker) Today() *domain.AttendanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.today == nil {
		return nil
	}
	rec := *t.today
	return &rec
}

// Recent returns a copy of the bounded newest-first window.
func (t *Tracker) Recent() []domain.AttendanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.AttendanceRecord, len(t.recent))
	copy(out, t.recent)
	return out
}

// IsCheckedIn reports whether today's record exists and is still open. It is
// computed from state on every call, never stored.
func (t *Tracker) IsCheckedIn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.today != nil && t.today.CheckOutTime == nil
}

// Reset clears all cached state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.today = nil
	t.recent = nil
}

// adoptLocked installs a record fetched from the repository as today's record
// and folds it into the recent window. Callers must hold t.mu.
func (t *Tracker) adoptLocked(record *domain.AttendanceRecord) {
	t.today = record
	for i := range t.recent {
		if t.recent[i].ID == record.ID {
			t.recent[i] = *record
			return
		}
	}
	t.recent = append([]domain.AttendanceRecord{*record}, t.recent...)
	if len(t.recent) > t.recentSize {
		t.recent = t.recent[:t.recentSize]
	}
}

// acquire takes the busy flag for a check-in, enforcing its preconditions
// under the lock. Today's record may have rolled over to a new day since it
// was cached, in which case it no longer blocks a check-in.
func (t *Tracker) acquire(today string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy {
		return ErrBusy
	}
	if t.today != nil && t.today.Date == today {
		return ErrAlreadyCheckedIn
	}
	t.busy = true
	return nil
}
