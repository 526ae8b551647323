package ledger

import (
	"context"
	"testing"
	"time"

	"cashledger/internal/core"
)

func record(t *testing.T, service *Service, user core.User, amount int64, kind core.Kind, ts time.Time) {
	t.Helper()
	if _, err := service.CreateTransaction(context.Background(), user, CreateInput{
		Amount: &amount, Kind: kind, Timestamp: &ts,
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
}

func TestMonthlyReport_Buckets(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()
	user := testUser(t, repo, "alice")

	// January: both kinds. February: expenses only. March: incomes only.
	record(t, service, user, 1000, core.Income, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	record(t, service, user, 300, core.Expense, time.Date(2026, 1, 20, 18, 0, 0, 0, time.UTC))
	record(t, service, user, 150, core.Expense, time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC))
	record(t, service, user, 80, core.Expense, time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC))
	record(t, service, user, 500, core.Income, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	report, err := service.MonthlyReport(ctx, user, nil, nil)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if len(report) != 3 {
		t.Fatalf("report has %d rows, want 3: %+v", len(report), report)
	}

	jan, feb, mar := report[0], report[1], report[2]

	if !jan.Month.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first row month = %v, want January 1st", jan.Month)
	}
	if jan.Expenses == nil || *jan.Expenses != 450 {
		t.Errorf("January expenses = %v, want 450", jan.Expenses)
	}
	if jan.Incomes == nil || *jan.Incomes != 1000 {
		t.Errorf("January incomes = %v, want 1000", jan.Incomes)
	}

	// Absent kinds are nil, never zero.
	if feb.Expenses == nil || *feb.Expenses != 80 {
		t.Errorf("February expenses = %v, want 80", feb.Expenses)
	}
	if feb.Incomes != nil {
		t.Errorf("February incomes = %v, want nil (no income that month)", *feb.Incomes)
	}
	if mar.Expenses != nil {
		t.Errorf("March expenses = %v, want nil", *mar.Expenses)
	}
	if mar.Incomes == nil || *mar.Incomes != 500 {
		t.Errorf("March incomes = %v, want 500", mar.Incomes)
	}
}

func TestMonthlyReport_SkipsEmptyMonths(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()
	user := testUser(t, repo, "alice")

	record(t, service, user, 10, core.Expense, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	record(t, service, user, 20, core.Expense, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC))

	report, err := service.MonthlyReport(ctx, user, nil, nil)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	// February and March never appear; absent months are omitted entirely.
	if len(report) != 2 {
		t.Fatalf("report has %d rows, want 2: %+v", len(report), report)
	}
	if report[0].Month.Month() != time.January || report[1].Month.Month() != time.April {
		t.Errorf("report months = %v and %v, want January and April",
			report[0].Month, report[1].Month)
	}
}

func TestMonthlyReport_RangeBounds(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()
	user := testUser(t, repo, "alice")

	record(t, service, user, 1, core.Expense, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	record(t, service, user, 2, core.Expense, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	record(t, service, user, 3, core.Expense, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	after := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	report, err := service.MonthlyReport(ctx, user, &before, &after)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("bounded report has %d rows, want 1: %+v", len(report), report)
	}
	if report[0].Month.Month() != time.February {
		t.Errorf("bounded report month = %v, want February", report[0].Month)
	}
	if report[0].Expenses == nil || *report[0].Expenses != 2 {
		t.Errorf("February expenses = %v, want 2", report[0].Expenses)
	}
}

func TestMonthlyReport_Empty(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := testUser(t, repo, "alice")

	report, err := service.MonthlyReport(context.Background(), user, nil, nil)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if len(report) != 0 {
		t.Errorf("report for a user with no transactions = %+v, want empty", report)
	}
}

func TestMonthlyReport_BucketsInEventZone(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()
	user := testUser(t, repo, "alice")

	// Just after midnight February 1st in UTC+2: the UTC instant is still
	// January 31st, but the event belongs to February in its own zone.
	eet := time.FixedZone("EET", 2*3600)
	record(t, service, user, 42, core.Expense, time.Date(2026, 2, 1, 0, 30, 0, 0, eet))

	report, err := service.MonthlyReport(ctx, user, nil, nil)
	if err != nil {
		t.Fatalf("MonthlyReport() error = %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("report has %d rows, want 1", len(report))
	}
	if report[0].Month.Month() != time.February {
		t.Errorf("month = %v, want February in the event's own zone", report[0].Month)
	}
}

func TestMonthStart(t *testing.T) {
	zone := time.FixedZone("JST", 9*3600)
	ts := time.Date(2026, 7, 23, 14, 5, 6, 7, zone)

	got := monthStart(ts)
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, zone)
	if !got.Equal(want) {
		t.Errorf("monthStart(%v) = %v, want %v", ts, got, want)
	}
	if got.Location() != zone {
		t.Errorf("monthStart changed the zone to %v", got.Location())
	}
}
