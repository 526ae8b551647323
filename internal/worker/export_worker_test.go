package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cashledger/internal/amqp"
	"cashledger/internal/core"
	"cashledger/internal/export/memory"
	"cashledger/internal/storage"
)

func newTestWorker(t *testing.T) (*ExportWorker, *storage.Repository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	journal := memory.New()
	return NewExportWorker(repo, journal, 10), repo, journal
}

func seed(t *testing.T, repo *storage.Repository) (core.User, core.Transaction) {
	t.Helper()
	ctx := context.Background()
	user, err := repo.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	tx, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:    user.ID,
		Amount:    250,
		Kind:      core.Income,
		Timestamp: time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	return user, tx
}

func TestHandleEvent_Created(t *testing.T) {
	w, repo, journal := newTestWorker(t)
	ctx := context.Background()
	user, tx := seed(t, repo)

	event := amqp.NewLedgerEvent(tx.ID, user.ID, amqp.ActionCreated)
	if err := w.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	rows := journal.Rows()
	if len(rows) != 1 {
		t.Fatalf("journal has %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.User != "alice" || row.Action != amqp.ActionCreated {
		t.Errorf("row = %+v, want alice/created", row)
	}
	if row.Amount != 250 || row.Kind != "I" || row.Balance != 250 {
		t.Errorf("row = %+v, want amount 250 kind I balance 250", row)
	}

	// A created event also settles the export marker, so the sweep skips it.
	pending, err := repo.UnexportedTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("UnexportedTransactions() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("still %d unexported after created event", len(pending))
	}
}

func TestHandleEvent_CategoryName(t *testing.T) {
	w, repo, journal := newTestWorker(t)
	ctx := context.Background()
	user, _ := seed(t, repo)

	food, err := repo.CreateCategory(ctx, "Food")
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	tagged, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID: user.ID, Amount: 30, Kind: core.Expense,
		CategoryID: &food.ID, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	if err := w.HandleEvent(ctx, amqp.NewLedgerEvent(tagged.ID, user.ID, amqp.ActionCreated)); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	rows := journal.Rows()
	if len(rows) != 1 || rows[0].Category != "Food" {
		t.Errorf("journal rows = %+v, want one row with category Food", rows)
	}
}

func TestHandleEvent_Deleted(t *testing.T) {
	w, repo, journal := newTestWorker(t)
	ctx := context.Background()
	user, tx := seed(t, repo)

	if err := repo.DeleteTransaction(ctx, user.ID, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}

	event := amqp.NewLedgerEvent(tx.ID, user.ID, amqp.ActionDeleted)
	if err := w.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent(deleted) error = %v", err)
	}

	rows := journal.Rows()
	if len(rows) != 1 {
		t.Fatalf("journal has %d rows, want 1", len(rows))
	}
	if rows[0].Action != amqp.ActionDeleted || rows[0].Balance != 0 {
		t.Errorf("delete row = %+v, want deleted action and balance 0", rows[0])
	}
}

func TestHandleEvent_VanishedTransaction(t *testing.T) {
	w, repo, journal := newTestWorker(t)
	ctx := context.Background()
	user, _ := seed(t, repo)

	// A created event whose transaction is already gone is dropped, not
	// requeued forever.
	event := amqp.NewLedgerEvent(99999, user.ID, amqp.ActionCreated)
	if err := w.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent(vanished) error = %v, want nil", err)
	}
	if len(journal.Rows()) != 0 {
		t.Errorf("journal rows = %+v, want none for a vanished transaction", journal.Rows())
	}
}

func TestHandleEvent_UnknownUser(t *testing.T) {
	w, _, _ := newTestWorker(t)

	event := amqp.NewLedgerEvent(1, 99999, amqp.ActionCreated)
	if err := w.HandleEvent(context.Background(), event); err == nil {
		t.Error("HandleEvent() with unknown user should error so the event is requeued")
	}
}

func TestProcessUnexported(t *testing.T) {
	w, repo, journal := newTestWorker(t)
	ctx := context.Background()
	user, _ := seed(t, repo)

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: user.ID, Amount: int64(i + 1), Kind: core.Expense, Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	if err := w.ProcessUnexported(ctx); err != nil {
		t.Fatalf("ProcessUnexported() error = %v", err)
	}

	// The seed transaction plus the three above, all journalled and marked.
	if got := len(journal.Rows()); got != 4 {
		t.Errorf("journal has %d rows, want 4", got)
	}
	pending, err := repo.UnexportedTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("UnexportedTransactions() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("still %d unexported after sweep", len(pending))
	}

	// A second sweep is a no-op.
	if err := w.ProcessUnexported(ctx); err != nil {
		t.Fatalf("ProcessUnexported() second run error = %v", err)
	}
	if got := len(journal.Rows()); got != 4 {
		t.Errorf("second sweep appended rows: %d total, want 4", got)
	}
}

func TestProcessUnexported_RespectsBatchSize(t *testing.T) {
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	defer repo.Close()

	journal := memory.New()
	w := NewExportWorker(repo, journal, 2)
	ctx := context.Background()
	user, _ := seed(t, repo)
	for i := 0; i < 2; i++ {
		if _, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: user.ID, Amount: 7, Kind: core.Expense, Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	// Three pending, batch size two: one sweep exports exactly two.
	if err := w.ProcessUnexported(ctx); err != nil {
		t.Fatalf("ProcessUnexported() error = %v", err)
	}
	if got := len(journal.Rows()); got != 2 {
		t.Errorf("one sweep exported %d rows, want batch size 2", got)
	}

	pending, err := repo.UnexportedTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("UnexportedTransactions() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("%d transactions still pending, want 1", len(pending))
	}
}
