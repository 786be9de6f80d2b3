package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
	"github.com/rimo-de/attend-academy-timekeeper/internal/repository"
)

const createAttendanceTable = `
CREATE TABLE IF NOT EXISTS attendance_records (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	check_in_time DATETIME NOT NULL,
	check_out_time DATETIME NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (user_id, date)
);
`

const createAttendanceDateIndex = `
CREATE INDEX IF NOT EXISTS idx_attendance_user_date ON attendance_records (user_id, date DESC);
`

type AttendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository(db *sql.DB) repository.AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAttendanceTable); err != nil {
		return fmt.Errorf("create attendance table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createAttendanceDateIndex); err != nil {
		return fmt.Errorf("create attendance index: %w", err)
	}
	return nil
}

func (r *AttendanceRepository) Insert(ctx context.Context, record *domain.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO attendance_records (id, user_id, date, check_in_time, check_out_time, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Date,
		record.CheckInTime.UTC(),
		nullTime(record.CheckOutTime),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return repository.ErrDuplicateRecord
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

func (r *AttendanceRepository) SetCheckOut(ctx context.Context, id string, checkOut time.Time) (*domain.AttendanceRecord, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE attendance_records
SET check_out_time=?, updated_at=?
WHERE id=? AND check_out_time IS NULL`,
		checkOut.UTC(),
		now,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("set check out: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check out rows affected: %w", err)
	}
	if aff == 0 {
		return nil, repository.ErrRecordNotFound
	}
	return r.getByID(ctx, id)
}

func (r *AttendanceRepository) GetByUserAndDate(ctx context.Context, userID int64, date string) (*domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, date, check_in_time, check_out_time, created_at, updated_at
FROM attendance_records
WHERE user_id = ? AND date = ?`,
		userID,
		date,
	)
	return scanRecord(row)
}

func (r *AttendanceRepository) ListByUserAndDateRange(ctx context.Context, userID int64, from, to string) ([]domain.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, date, check_in_time, check_out_time, created_at, updated_at
FROM attendance_records
WHERE user_id = ? AND date >= ? AND date <= ?
ORDER BY date DESC`,
		userID,
		from,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendance range: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *AttendanceRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, date, check_in_time, check_out_time, created_at, updated_at
FROM attendance_records
WHERE user_id = ?
ORDER BY date DESC
LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent attendance: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *AttendanceRepository) getByID(ctx context.Context, id string) (*domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, date, check_in_time, check_out_time, created_at, updated_at
FROM attendance_records
WHERE id = ?`,
		id,
	)
	return scanRecord(row)
}

func collectRecords(rows *sql.Rows) ([]domain.AttendanceRecord, error) {
	var records []domain.AttendanceRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*domain.AttendanceRecord, error) {
	var (
		record   domain.AttendanceRecord
		checkOut sql.NullTime
	)
	if err := scanner.Scan(
		&record.ID,
		&record.UserID,
		&record.Date,
		&record.CheckInTime,
		&checkOut,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}
	record.CheckInTime = record.CheckInTime.UTC()
	if checkOut.Valid {
		t := checkOut.Time.UTC()
		record.CheckOutTime = &t
	}
	return &record, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
