package ledger

import (
	"context"
	"sort"
	"time"

	"cashledger/internal/core"
)

// MonthlyReport buckets the user's transactions into calendar months and sums
// incomes and expenses per bucket. The optional bounds are exclusive and use
// the same semantics as the listing filters. A month with no transaction of a
// kind reports nil for that kind rather than zero.
func (s *Service) MonthlyReport(ctx context.Context, user core.User, before, after *time.Time) ([]core.ReportRow, error) {
	transactions, err := s.store.TransactionsInRange(ctx, user.ID, before, after)
	if err != nil {
		return nil, err
	}

	// Months are keyed by their formatted first instant: two timestamps in
	// the same month and zone offset always collide, even when their
	// Location pointers differ after parsing.
	rows := make(map[string]*core.ReportRow)
	for _, t := range transactions {
		month := monthStart(t.Timestamp)
		key := month.Format(time.RFC3339)

		row, ok := rows[key]
		if !ok {
			row = &core.ReportRow{Month: month}
			rows[key] = row
		}

		switch t.Kind {
		case core.Income:
			addTo(&row.Incomes, t.Amount)
		case core.Expense:
			addTo(&row.Expenses, t.Amount)
		}
	}

	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	report := make([]core.ReportRow, 0, len(rows))
	for _, key := range keys {
		report = append(report, *rows[key])
	}
	return report, nil
}

// monthStart truncates a timestamp to the first instant of its calendar
// month, in the timestamp's own time zone.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func addTo(sum **int64, amount int64) {
	if *sum == nil {
		*sum = new(int64)
	}
	**sum += amount
}
