package domain

import (
	"fmt"
	"time"
)

// DayKeyLayout is the canonical calendar-day key format. Day keys are always
// derived in UTC so a record's date never depends on server locale.
const DayKeyLayout = "2006-01-02"

// DurationInProgress is reported for records that have no checkout yet.
const DurationInProgress = "in progress"

// AttendanceRecord is one user's attendance for one calendar day. A record is
// created by a check-in and closed at most once by a check-out; there is never
// more than one record per (UserID, Date).
type AttendanceRecord struct {
	ID           string
	UserID       int64
	Date         string
	CheckInTime  time.Time
	CheckOutTime *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsCheckedOut reports whether the record has been closed by a check-out.
func (r AttendanceRecord) IsCheckedOut() bool {
	return r.CheckOutTime != nil
}

// Duration renders the record's worked time for display. Open records report
// the in-progress sentinel rather than a numeric value.
func (r AttendanceRecord) Duration() string {
	return FormatDuration(r.CheckInTime, r.CheckOutTime)
}

// DayKey returns the canonical day key for the given instant.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ParseDayKey validates a day key supplied by a caller.
func ParseDayKey(s string) (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDuration renders the elapsed time between check-in and check-out as
// whole hours plus remainder minutes, truncating. A missing checkout yields
// the in-progress sentinel.
func FormatDuration(checkIn time.Time, checkOut *time.Time) string {
	if checkOut == nil {
		return DurationInProgress
	}
	elapsed := checkOut.Sub(checkIn)
	if elapsed < 0 {
		elapsed = 0
	}
	hours := int(elapsed / time.Hour)
	minutes := int((elapsed % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
