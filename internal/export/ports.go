// Package export writes committed ledger activity to an external journal.
// The export is an observer: it reads from the store and never feeds back
// into balances or transactions.
package export

import (
	"context"
	"time"
)

// JournalRow is one exported line of ledger activity.
type JournalRow struct {
	OccurredAt time.Time
	User       string
	Action     string
	Kind       string
	Amount     int64
	Category   string
	Balance    int64
}

// JournalWriter is the outbound port implemented by the Google Sheets client
// and the in-memory store used in tests.
type JournalWriter interface {
	Append(ctx context.Context, row JournalRow) error
}
