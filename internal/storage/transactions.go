package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashledger/internal/core"
)

// timeLayout is the canonical on-disk timestamp encoding. The original zone
// offset is kept so monthly bucketing can honour the event's own time zone;
// SQL comparisons go through datetime() which normalises offsets.
const timeLayout = time.RFC3339

// CreateTransaction inserts a transaction and recomputes the owner's balance
// in one atomic unit.
func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if t.CategoryID != nil {
		ok, err := r.categoryExistsTx(ctx, tx, *t.CategoryID)
		if err != nil {
			return core.Transaction{}, r.consistency(err)
		}
		if !ok {
			return core.Transaction{}, core.ErrUnknownCategory
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, kind, category_id, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, string(t.Kind), nullableID(t.CategoryID),
		t.Timestamp.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("insert transaction: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("transaction id: %w", err))
	}
	t.ID = id

	if err := r.recomputeBalanceTx(ctx, tx, t.UserID); err != nil {
		return core.Transaction{}, r.consistency(err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("commit create: %w", err))
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", t.ID, "user_id", t.UserID, "kind", string(t.Kind), "amount", t.Amount)

	return t, nil
}

// GetTransaction fetches one transaction scoped to its owner. A transaction
// owned by someone else is indistinguishable from a missing one.
func (r *Repository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, kind, category_id, timestamp
		 FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction applies a partial update and recomputes the owner's
// balance atomically. Ownership is the existence check and is never mutable.
func (r *Repository) UpdateTransaction(ctx context.Context, userID, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, user_id, amount, kind, category_id, timestamp
		 FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("load transaction: %w", err))
	}

	if patch.Amount != nil {
		t.Amount = *patch.Amount
	}
	if patch.Kind != nil {
		t.Kind = *patch.Kind
	}
	if patch.ClearCategory {
		t.CategoryID = nil
	} else if patch.CategoryID != nil {
		ok, err := r.categoryExistsTx(ctx, tx, *patch.CategoryID)
		if err != nil {
			return core.Transaction{}, r.consistency(err)
		}
		if !ok {
			return core.Transaction{}, core.ErrUnknownCategory
		}
		t.CategoryID = patch.CategoryID
	}
	if patch.Timestamp != nil {
		t.Timestamp = *patch.Timestamp
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions
		 SET amount = ?, kind = ?, category_id = ?, timestamp = ?, updated_at = datetime('now')
		 WHERE id = ? AND user_id = ?`,
		t.Amount, string(t.Kind), nullableID(t.CategoryID),
		t.Timestamp.Format(timeLayout), id, userID); err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("update transaction: %w", err))
	}

	if err := r.recomputeBalanceTx(ctx, tx, userID); err != nil {
		return core.Transaction{}, r.consistency(err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, r.consistency(fmt.Errorf("commit update: %w", err))
	}

	return t, nil
}

// DeleteTransaction removes a transaction and recomputes the owner's balance
// atomically.
func (r *Repository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.consistency(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return r.consistency(fmt.Errorf("delete transaction: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return r.consistency(fmt.Errorf("delete result: %w", err))
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	if err := r.recomputeBalanceTx(ctx, tx, userID); err != nil {
		return r.consistency(err)
	}

	if err := tx.Commit(); err != nil {
		return r.consistency(fmt.Errorf("commit delete: %w", err))
	}

	return nil
}

// ListTransactions returns the owner-scoped, filtered, ordered listing.
// The owner predicate is fixed first; filters can only narrow within it.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, f core.Filter) ([]core.Transaction, error) {
	query := `SELECT id, user_id, amount, kind, category_id, timestamp
		 FROM transactions WHERE user_id = ?`
	args := []any{userID}

	if f.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*f.Kind))
	}
	if f.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *f.CategoryID)
	}
	if f.AmountLT != nil {
		query += ` AND amount < ?`
		args = append(args, *f.AmountLT)
	}
	if f.AmountGT != nil {
		query += ` AND amount > ?`
		args = append(args, *f.AmountGT)
	}
	if f.TimestampLT != nil {
		query += ` AND datetime(timestamp) < datetime(?)`
		args = append(args, f.TimestampLT.Format(timeLayout))
	}
	if f.TimestampGT != nil {
		query += ` AND datetime(timestamp) > datetime(?)`
		args = append(args, f.TimestampGT.Format(timeLayout))
	}

	col := f.OrderColumn()
	if col == "timestamp" {
		col = "datetime(timestamp)"
	}
	// Secondary id sort keeps the ordering deterministic on ties.
	query += ` ORDER BY ` + col + ` ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// TransactionsInRange returns the owner's transactions bounded by the
// optional exclusive timestamp bounds, ordered by event time. This feeds the
// monthly report aggregation.
func (r *Repository) TransactionsInRange(ctx context.Context, userID int64, before, after *time.Time) ([]core.Transaction, error) {
	return r.ListTransactions(ctx, userID, core.Filter{
		TimestampLT: before,
		TimestampGT: after,
		OrderBy:     "timestamp",
	})
}

// CountTransactions returns how many transactions the user owns.
func (r *Repository) CountTransactions(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Balance returns the persisted derived balance. A user with no balance row
// yet reads as zero; the row itself is created by the first mutating write.
func (r *Repository) Balance(ctx context.Context, userID int64) (core.Balance, error) {
	b := core.Balance{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&b.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return core.Balance{}, fmt.Errorf("read balance: %w", err)
	}
	return b, nil
}

// recomputeBalanceTx rederives the user's balance from the full transaction
// log and upserts it, inside the caller's transaction. Zero matching rows sum
// to 0, never NULL.
func (r *Repository) recomputeBalanceTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	var incomes, expenses int64
	err := tx.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'I' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN kind = 'E' THEN amount END), 0)
		 FROM transactions WHERE user_id = ?`, userID).Scan(&incomes, &expenses)
	if err != nil {
		return fmt.Errorf("sum transactions: %w", err)
	}

	if r.balanceHook != nil {
		if err := r.balanceHook(); err != nil {
			return fmt.Errorf("balance recompute: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO balances (user_id, amount, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(user_id) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		userID, incomes-expenses); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}

	return nil
}

// consistency classifies an error out of the atomic mutate+recompute unit.
// Domain errors pass through; anything else means the unit rolled back and is
// safe to retry.
func (r *Repository) consistency(err error) error {
	if errors.Is(err, core.ErrNotFound) || core.IsValidation(err) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrConsistency, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		kind     string
		category sql.NullInt64
		ts       string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &kind, &category, &ts); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	if category.Valid {
		t.CategoryID = &category.Int64
	}
	parsed, err := time.Parse(timeLayout, ts)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	t.Timestamp = parsed
	return t, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
