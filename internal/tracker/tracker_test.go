package tracker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rimo-de/attend-academy-timekeeper/internal/repository/memory"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestTracker(userID int64) (*Tracker, *memory.AttendanceRepository) {
	repo := memory.NewAttendanceRepository()
	tr := New(userID, repo, 10, testLogger())
	return tr, repo
}

func at(tr *Tracker, t time.Time) {
	tr.now = func() time.Time { return t.UTC() }
}

func TestCheckIn_CreatesTodayRecord(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	record, err := tr.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if record.ID == "" {
		t.Error("expected record id to be assigned")
	}
	if record.Date != "2024-01-15" {
		t.Errorf("expected date 2024-01-15, got %q", record.Date)
	}
	if record.CheckOutTime != nil {
		t.Error("new record must not have a checkout time")
	}
	if !tr.IsCheckedIn() {
		t.Error("expected IsCheckedIn after check-in")
	}
	if got := tr.Recent(); len(got) != 1 {
		t.Errorf("expected 1 recent record, got %d", len(got))
	}
}

func TestCheckIn_TwiceSameDayIsNoOp(t *testing.T) {
	tr, repo := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	first, err := tr.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("first CheckIn: %v", err)
	}

	at(tr, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	if _, err := tr.CheckIn(context.Background()); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	records, err := repo.ListRecent(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", len(records))
	}
	if records[0].ID != first.ID {
		t.Error("persisted record should be the original one")
	}
}

func TestCheckIn_AfterCheckoutStillNoOp(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	at(tr, time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC))
	if _, err := tr.CheckOut(context.Background()); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	if _, err := tr.CheckIn(context.Background()); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn after checkout, got %v", err)
	}
}

func TestCheckIn_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	tr, repo := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	repo.FailNext(errors.New("storage offline"))
	if _, err := tr.CheckIn(context.Background()); err == nil {
		t.Fatal("expected persistence error")
	}

	if tr.IsCheckedIn() {
		t.Error("failed check-in must not mark the user checked in")
	}
	if tr.Today() != nil {
		t.Error("failed check-in must not set today record")
	}
	if len(tr.Recent()) != 0 {
		t.Error("failed check-in must not touch recent records")
	}

	// A retry succeeds once persistence recovers.
	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("retry CheckIn: %v", err)
	}
}

func TestCheckIn_DuplicateAdoptsPersistedRecord(t *testing.T) {
	repo := memory.NewAttendanceRepository()
	day := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	// Another writer already persisted today's record.
	seed := New(1, repo, 10, testLogger())
	at(seed, day)
	persisted, err := seed.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("seed CheckIn: %v", err)
	}

	tr := New(1, repo, 10, testLogger())
	at(tr, day.Add(time.Hour))
	if _, err := tr.CheckIn(context.Background()); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	if !tr.IsCheckedIn() {
		t.Error("tracker must report checked in after adopting the persisted record")
	}
	today := tr.Today()
	if today == nil || today.ID != persisted.ID {
		t.Error("expected today record adopted from the store")
	}
	recent := tr.Recent()
	if len(recent) != 1 || recent[0].ID != persisted.ID {
		t.Error("expected adopted record in the recent window")
	}
}

func TestCheckOut_BeforeCheckInIsNoOp(t *testing.T) {
	tr, repo := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	if _, err := tr.CheckOut(context.Background()); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn, got %v", err)
	}

	records, err := repo.ListRecent(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("checkout alone must not create a record, found %d", len(records))
	}
}

func TestCheckOut_ClosesTodayRecord(t *testing.T) {
	tr, _ := newTestTracker(1)
	checkIn := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	at(tr, checkIn)

	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	checkOut := checkIn.Add(2*time.Hour + 15*time.Minute)
	at(tr, checkOut)
	record, err := tr.CheckOut(context.Background())
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	if record.CheckOutTime == nil || !record.CheckOutTime.Equal(checkOut) {
		t.Errorf("expected checkout time %v, got %v", checkOut, record.CheckOutTime)
	}
	if got := record.Duration(); got != "2h 15m" {
		t.Errorf("expected duration 2h 15m, got %q", got)
	}
	if tr.IsCheckedIn() {
		t.Error("checked-out record must not report checked in")
	}

	recent := tr.Recent()
	if len(recent) != 1 || recent[0].CheckOutTime == nil {
		t.Error("recent window must reflect the checkout")
	}
}

func TestCheckOut_AfterDayRolloverIsNoOp(t *testing.T) {
	tr, repo := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	record, err := tr.CheckIn(context.Background())
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	// Past midnight the cached record belongs to yesterday; there is no
	// today record to close.
	at(tr, time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC))
	if _, err := tr.CheckOut(context.Background()); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn after rollover, got %v", err)
	}

	persisted, err := repo.GetByUserAndDate(context.Background(), 1, "2024-01-15")
	if err != nil {
		t.Fatalf("GetByUserAndDate: %v", err)
	}
	if persisted.ID != record.ID || persisted.CheckOutTime != nil {
		t.Error("yesterday's record must stay open")
	}
}

func TestCheckOut_TwiceKeepsFirstValue(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	first := time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC)
	at(tr, first)
	if _, err := tr.CheckOut(context.Background()); err != nil {
		t.Fatalf("first CheckOut: %v", err)
	}

	at(tr, first.Add(time.Hour))
	if _, err := tr.CheckOut(context.Background()); !errors.Is(err, ErrAlreadyCheckedOut) {
		t.Fatalf("expected ErrAlreadyCheckedOut, got %v", err)
	}

	today := tr.Today()
	if today == nil || today.CheckOutTime == nil || !today.CheckOutTime.Equal(first) {
		t.Error("second checkout must not overwrite the first value")
	}
}

func TestCheckOut_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	tr, repo := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	repo.FailNext(errors.New("storage offline"))
	at(tr, time.Date(2024, 1, 15, 17, 0, 0, 0, time.UTC))
	if _, err := tr.CheckOut(context.Background()); err == nil {
		t.Fatal("expected persistence error")
	}

	if !tr.IsCheckedIn() {
		t.Error("failed checkout must leave the record open")
	}
	if today := tr.Today(); today == nil || today.CheckOutTime != nil {
		t.Error("failed checkout must not set a checkout time")
	}
}

func TestMutations_RejectedWhileBusy(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	tr.mu.Lock()
	tr.busy = true
	tr.mu.Unlock()

	if _, err := tr.CheckIn(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy from CheckIn, got %v", err)
	}
	if _, err := tr.CheckOut(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy from CheckOut, got %v", err)
	}
}

func TestFetchByDateRange_InclusiveWindowSortedDescending(t *testing.T) {
	tr, _ := newTestTracker(1)

	days := []string{"2023-12-31", "2024-01-01", "2024-01-15", "2024-01-31", "2024-02-01"}
	for _, day := range days {
		parsed, _ := time.Parse("2006-01-02", day)
		at(tr, parsed.Add(9*time.Hour))
		if _, err := tr.CheckIn(context.Background()); err != nil {
			t.Fatalf("CheckIn %s: %v", day, err)
		}
	}

	records, err := tr.FetchByDateRange(context.Background(), "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("FetchByDateRange: %v", err)
	}

	want := []string{"2024-01-31", "2024-01-15", "2024-01-01"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.Date != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rec.Date)
		}
	}
}

func TestFetchByDateRange_MissingBoundYieldsEmpty(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	for _, bounds := range [][2]string{{"", ""}, {"2024-01-01", ""}, {"", "2024-01-31"}} {
		records, err := tr.FetchByDateRange(context.Background(), bounds[0], bounds[1])
		if err != nil {
			t.Errorf("bounds %v: unexpected error %v", bounds, err)
		}
		if len(records) != 0 {
			t.Errorf("bounds %v: expected empty result, got %d records", bounds, len(records))
		}
	}
}

func TestFetchByDateRange_RejectsMalformedBounds(t *testing.T) {
	tr, _ := newTestTracker(1)

	if _, err := tr.FetchByDateRange(context.Background(), "01/01/2024", "2024-01-31"); err == nil {
		t.Error("expected error for malformed from bound")
	}
	if _, err := tr.FetchByDateRange(context.Background(), "2024-01-01", "bogus"); err == nil {
		t.Error("expected error for malformed to bound")
	}
}

func TestLoad_PopulatesStateAndToleratesFailure(t *testing.T) {
	repo := memory.NewAttendanceRepository()
	seed := New(1, repo, 10, testLogger())
	at(seed, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if _, err := seed.CheckIn(context.Background()); err != nil {
		t.Fatalf("seed CheckIn: %v", err)
	}

	tr := New(1, repo, 10, testLogger())
	at(tr, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	tr.Load(context.Background())

	if !tr.IsCheckedIn() {
		t.Error("expected loaded tracker to see today's open record")
	}
	if len(tr.Recent()) != 1 {
		t.Error("expected loaded tracker to see recent records")
	}
}

func TestRecent_BoundedNewestFirst(t *testing.T) {
	tr, _ := newTestTracker(1)
	tr.recentSize = 3

	for day := 1; day <= 5; day++ {
		at(tr, time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC))
		if _, err := tr.CheckIn(context.Background()); err != nil {
			t.Fatalf("CheckIn day %d: %v", day, err)
		}
	}

	recent := tr.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected window of 3, got %d", len(recent))
	}
	want := []string{"2024-01-05", "2024-01-04", "2024-01-03"}
	for i, rec := range recent {
		if rec.Date != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], rec.Date)
		}
	}
}

func TestReset_ClearsState(t *testing.T) {
	tr, _ := newTestTracker(1)
	at(tr, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	if _, err := tr.CheckIn(context.Background()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	tr.Reset()

	if tr.Today() != nil {
		t.Error("expected today record cleared")
	}
	if len(tr.Recent()) != 0 {
		t.Error("expected recent records cleared")
	}
	if tr.IsCheckedIn() {
		t.Error("expected IsCheckedIn false after reset")
	}
}
