// Package worker turns ledger events into journal export rows. It consumes
// the AMQP stream and, as a backstop, periodically sweeps transactions the
// stream never delivered.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cashledger/internal/amqp"
	"cashledger/internal/core"
	"cashledger/internal/export"
	"cashledger/internal/storage"
)

type ExportWorker struct {
	store     *storage.Repository
	journal   export.JournalWriter
	batchSize int
}

func NewExportWorker(store *storage.Repository, journal export.JournalWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		journal:   journal,
		batchSize: batchSize,
	}
}

// HandleEvent exports one ledger event. Returning an error requeues the
// event, so anything unrecoverable is logged and swallowed instead.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"transaction_id", event.TransactionID,
		"user_id", event.UserID,
		"action", event.Action)

	username, err := w.store.Username(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", event.UserID, err)
	}

	balance, err := w.store.Balance(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	if event.Action == amqp.ActionDeleted {
		row := export.JournalRow{
			OccurredAt: event.OccurredAt,
			User:       username,
			Action:     event.Action,
			Balance:    balance.Amount,
		}
		if err := w.journal.Append(ctx, row); err != nil {
			return fmt.Errorf("append delete row: %w", err)
		}
		return nil
	}

	transaction, err := w.store.TransactionByID(ctx, event.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted between the event and now; the delete event covers it.
		slog.WarnContext(ctx, "Transaction vanished before export, skipping",
			"transaction_id", event.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", event.TransactionID, err)
	}

	row, err := w.buildRow(ctx, username, event.Action, balance.Amount, transaction)
	if err != nil {
		return err
	}
	if err := w.journal.Append(ctx, row); err != nil {
		return fmt.Errorf("append journal row: %w", err)
	}

	if event.Action == amqp.ActionCreated {
		if err := w.store.MarkExported(ctx, transaction.ID); err != nil {
			return fmt.Errorf("mark exported: %w", err)
		}
	}

	return nil
}

// ProcessUnexported exports transactions the event stream missed, up to the
// configured batch size per sweep.
func (w *ExportWorker) ProcessUnexported(ctx context.Context) error {
	pending, err := w.store.UnexportedTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping unexported transactions", "count", len(pending))

	for _, transaction := range pending {
		username, err := w.store.Username(ctx, transaction.UserID)
		if err != nil {
			return fmt.Errorf("resolve user %d: %w", transaction.UserID, err)
		}
		balance, err := w.store.Balance(ctx, transaction.UserID)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}

		row, err := w.buildRow(ctx, username, amqp.ActionCreated, balance.Amount, transaction)
		if err != nil {
			return err
		}
		if err := w.journal.Append(ctx, row); err != nil {
			return fmt.Errorf("append journal row: %w", err)
		}
		if err := w.store.MarkExported(ctx, transaction.ID); err != nil {
			return fmt.Errorf("mark exported: %w", err)
		}
	}

	return nil
}

func (w *ExportWorker) buildRow(ctx context.Context, username, action string, balance int64, t core.Transaction) (export.JournalRow, error) {
	category := ""
	if t.CategoryID != nil {
		name, err := w.store.CategoryName(ctx, *t.CategoryID)
		if err != nil {
			return export.JournalRow{}, fmt.Errorf("resolve category: %w", err)
		}
		category = name
	}

	return export.JournalRow{
		OccurredAt: t.Timestamp,
		User:       username,
		Action:     action,
		Kind:       string(t.Kind),
		Amount:     t.Amount,
		Category:   category,
		Balance:    balance,
	}, nil
}
