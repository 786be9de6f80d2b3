package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
)

var (
	// ErrRecordNotFound is returned when no attendance record matches a lookup.
	ErrRecordNotFound = errors.New("attendance record not found")
	// ErrDuplicateRecord is returned when an insert would violate the
	// one-record-per-user-per-day invariant.
	ErrDuplicateRecord = errors.New("attendance record already exists for this date")
)

// AttendanceRepository exposes persistence operations for attendance records.
// Range queries are inclusive on both ends and ordered by date descending.
type AttendanceRepository interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, record *domain.AttendanceRecord) error
	SetCheckOut(ctx context.Context, id string, checkOut time.Time) (*domain.AttendanceRecord, error)
	GetByUserAndDate(ctx context.Context, userID int64, date string) (*domain.AttendanceRecord, error)
	ListByUserAndDateRange(ctx context.Context, userID int64, from, to string) ([]domain.AttendanceRecord, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]domain.AttendanceRecord, error)
}
