// Package report renders attendance records as CSV export artifacts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/rimo-de/attend-academy-timekeeper/internal/domain"
)

// NotCheckedOut is written in place of a missing checkout time.
const NotCheckedOut = "Not checked out"

var header = []string{"Date", "Check In Time", "Check Out Time", "Duration"}

// timeLayout matches the wall-clock presentation used on the history screen.
const timeLayout = "15:04:05"

// Write emits the CSV report for the given records. An empty input produces
// just the header row.
func Write(w io.Writer, records []domain.AttendanceRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		checkOut := NotCheckedOut
		if rec.CheckOutTime != nil {
			checkOut = rec.CheckOutTime.Format(timeLayout)
		}
		row := []string{
			rec.Date,
			rec.CheckInTime.Format(timeLayout),
			checkOut,
			rec.Duration(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Filename returns the export filename for a report generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("attendance_report_%s.csv", domain.DayKey(t))
}
