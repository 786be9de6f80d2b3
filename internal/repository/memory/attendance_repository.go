package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
	"github.com/rimo-de/attend-academy-timekeeper/internal/repository"
)

// AttendanceRepository is an in-memory attendance store intended for tests
// and dev environments. FailNext lets tests inject a persistence failure for
// the next mutating call.
type AttendanceRepository struct {
	mu       sync.Mutex
	records  map[string]domain.AttendanceRecord
	failNext error
}

func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{
		records: make(map[string]domain.AttendanceRecord),
	}
}

// FailNext makes the next Insert or SetCheckOut return err.
func (r *AttendanceRepository) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *AttendanceRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *AttendanceRepository) Init(_ context.Context) error { return nil }

func (r *AttendanceRepository) Insert(_ context.Context, record *domain.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(); err != nil {
		return err
	}

	for _, existing := range r.records {
		if existing.UserID == record.UserID && existing.Date == record.Date {
			return repository.ErrDuplicateRecord
		}
	}

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	r.records[record.ID] = *record
	return nil
}

func (r *AttendanceRepository) SetCheckOut(_ context.Context, id string, checkOut time.Time) (*domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	record, ok := r.records[id]
	if !ok || record.CheckOutTime != nil {
		return nil, repository.ErrRecordNotFound
	}

	t := checkOut.UTC()
	record.CheckOutTime = &t
	record.UpdatedAt = time.Now().UTC()
	r.records[id] = record
	return &record, nil
}

func (r *AttendanceRepository) GetByUserAndDate(_ context.Context, userID int64, date string) (*domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.UserID == userID && record.Date == date {
			rec := record
			return &rec, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *AttendanceRepository) ListByUserAndDateRange(_ context.Context, userID int64, from, to string) ([]domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.AttendanceRecord
	for _, record := range r.records {
		if record.UserID == userID && record.Date >= from && record.Date <= to {
			out = append(out, record)
		}
	}
	sortByDateDesc(out)
	return out, nil
}

func (r *AttendanceRepository) ListRecent(_ context.Context, userID int64, limit int) ([]domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.AttendanceRecord
	for _, record := range r.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	sortByDateDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByDateDesc(records []domain.AttendanceRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
}
