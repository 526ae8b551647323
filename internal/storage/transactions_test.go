package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"cashledger/internal/core"
)

func ptr[T any](v T) *T { return &v }

// checkBalance asserts the persisted balance equals the recomputed sum of the
// user's transaction log.
func checkBalance(t *testing.T, repo *Repository, userID int64, want int64) {
	t.Helper()
	balance, err := repo.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance.Amount != want {
		t.Fatalf("Balance() = %d, want %d", balance.Amount, want)
	}
}

func TestBalanceFollowsEveryMutation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	checkBalance(t, repo, user.ID, 0)

	salary := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 1000, Kind: core.Income})
	checkBalance(t, repo, user.ID, 1000)

	groceries := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 300, Kind: core.Expense})
	checkBalance(t, repo, user.ID, 700)

	// Overspending is a legitimate state.
	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 900, Kind: core.Expense})
	checkBalance(t, repo, user.ID, -200)

	// Amount change is reflected immediately.
	if _, err := repo.UpdateTransaction(ctx, user.ID, groceries.ID,
		core.TransactionPatch{Amount: ptr(int64(100))}); err != nil {
		t.Fatalf("UpdateTransaction(amount) error = %v", err)
	}
	checkBalance(t, repo, user.ID, 0)

	// Flipping the kind swings the balance by twice the amount.
	if _, err := repo.UpdateTransaction(ctx, user.ID, groceries.ID,
		core.TransactionPatch{Kind: ptr(core.Income)}); err != nil {
		t.Fatalf("UpdateTransaction(kind) error = %v", err)
	}
	checkBalance(t, repo, user.ID, 200)

	if err := repo.DeleteTransaction(ctx, user.ID, salary.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	checkBalance(t, repo, user.ID, -800)
}

func TestCreateValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")
	now := time.Now()

	tests := []struct {
		name    string
		tx      core.Transaction
		wantErr error
	}{
		{
			name:    "negative amount",
			tx:      core.Transaction{UserID: user.ID, Amount: -1, Kind: core.Expense, Timestamp: now},
			wantErr: core.ErrNegativeAmount,
		},
		{
			name:    "invalid kind",
			tx:      core.Transaction{UserID: user.ID, Amount: 10, Kind: core.Kind("X"), Timestamp: now},
			wantErr: core.ErrInvalidKind,
		},
		{
			name:    "unknown category",
			tx:      core.Transaction{UserID: user.ID, Amount: 10, Kind: core.Expense, CategoryID: ptr(int64(999)), Timestamp: now},
			wantErr: core.ErrUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.CreateTransaction(ctx, tt.tx); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateTransaction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was recorded and no balance row appeared.
	count, err := repo.CountTransactions(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountTransactions() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountTransactions() = %d, want 0 after rejected creates", count)
	}
	checkBalance(t, repo, user.ID, 0)
}

func TestMutationRollsBackWhenRecomputeFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	existing := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 500, Kind: core.Income})
	checkBalance(t, repo, user.ID, 500)

	repo.balanceHook = func() error { return errors.New("recompute blew up") }

	t.Run("create", func(t *testing.T) {
		_, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: user.ID, Amount: 100, Kind: core.Expense, Timestamp: time.Now(),
		})
		if !errors.Is(err, core.ErrConsistency) {
			t.Fatalf("CreateTransaction() error = %v, want ErrConsistency", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		_, err := repo.UpdateTransaction(ctx, user.ID, existing.ID,
			core.TransactionPatch{Amount: ptr(int64(9))})
		if !errors.Is(err, core.ErrConsistency) {
			t.Fatalf("UpdateTransaction() error = %v, want ErrConsistency", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		err := repo.DeleteTransaction(ctx, user.ID, existing.ID)
		if !errors.Is(err, core.ErrConsistency) {
			t.Fatalf("DeleteTransaction() error = %v, want ErrConsistency", err)
		}
	})

	repo.balanceHook = nil

	// Every failed unit rolled back whole: the log and the balance are
	// exactly as they were before.
	count, err := repo.CountTransactions(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountTransactions() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountTransactions() = %d, want 1", count)
	}
	got, err := repo.GetTransaction(ctx, user.ID, existing.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.Amount != 500 || got.Kind != core.Income {
		t.Errorf("transaction changed despite rollback: %+v", got)
	}
	checkBalance(t, repo, user.ID, 500)
}

func TestOwnershipIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "alice")
	bob := seedUser(t, repo, "bob")

	secret := mustCreate(t, repo, core.Transaction{UserID: alice.ID, Amount: 777, Kind: core.Income})
	mustCreate(t, repo, core.Transaction{UserID: bob.ID, Amount: 5, Kind: core.Expense})

	// Another user's transaction reads as missing, never as forbidden.
	if _, err := repo.GetTransaction(ctx, bob.ID, secret.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetTransaction(foreign) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.UpdateTransaction(ctx, bob.ID, secret.ID,
		core.TransactionPatch{Amount: ptr(int64(1))}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateTransaction(foreign) error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteTransaction(ctx, bob.ID, secret.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteTransaction(foreign) error = %v, want ErrNotFound", err)
	}

	// The attempts left alice's data untouched.
	got, err := repo.GetTransaction(ctx, alice.ID, secret.ID)
	if err != nil {
		t.Fatalf("GetTransaction(owner) error = %v", err)
	}
	if got.Amount != 777 {
		t.Errorf("Amount = %d, want 777", got.Amount)
	}
	checkBalance(t, repo, alice.ID, 777)
	checkBalance(t, repo, bob.ID, -5)

	// Listings never leak across owners.
	bobList, err := repo.ListTransactions(ctx, bob.ID, core.Filter{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(bobList) != 1 || bobList[0].UserID != bob.ID {
		t.Errorf("ListTransactions(bob) = %+v, want only bob's own", bobList)
	}
}

func TestListFilterComposition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 50, Kind: core.Expense})
	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 200, Kind: core.Income})
	big := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 300, Kind: core.Expense})

	// kind=E AND amount_gt=100 keeps only the intersection.
	got, err := repo.ListTransactions(ctx, user.ID, core.Filter{
		Kind:     ptr(core.Expense),
		AmountGT: ptr(int64(100)),
	})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != big.ID {
		t.Fatalf("filtered list = %+v, want only the 300 expense", got)
	}

	// The bounds are strict.
	got, err = repo.ListTransactions(ctx, user.ID, core.Filter{AmountGT: ptr(int64(300))})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("amount_gt=300 matched %d rows, want 0 (exclusive bound)", len(got))
	}
}

func TestListTimestampBounds(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	jan := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 1, Kind: core.Expense, Timestamp: jan})
	middle := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 2, Kind: core.Expense, Timestamp: feb})
	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 3, Kind: core.Expense, Timestamp: mar})

	got, err := repo.ListTransactions(ctx, user.ID, core.Filter{
		TimestampGT: &jan,
		TimestampLT: &mar,
	})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != middle.ID {
		t.Fatalf("ranged list = %+v, want only the February row (exclusive bounds)", got)
	}

	// Offsets are normalised in comparisons: 09:00+01:00 is 08:00 UTC.
	offsetEquivalent := time.Date(2026, 1, 10, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	got, err = repo.ListTransactions(ctx, user.ID, core.Filter{TimestampGT: &offsetEquivalent})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("offset bound matched %d rows, want 2", len(got))
	}
}

func TestListOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	late := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	first := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 900, Kind: core.Expense, Timestamp: late})
	second := mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 100, Kind: core.Income, Timestamp: early})

	tests := []struct {
		name    string
		orderBy string
		wantIDs []int64
	}{
		{"by amount", "amount", []int64{second.ID, first.ID}},
		{"by timestamp", "timestamp", []int64{second.ID, first.ID}},
		{"by id", "id", []int64{first.ID, second.ID}},
		{"empty falls back to id", "", []int64{first.ID, second.ID}},
		{"unknown field falls back to id", "balance", []int64{first.ID, second.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListTransactions(ctx, user.ID, core.Filter{OrderBy: tt.orderBy})
			if err != nil {
				t.Fatalf("ListTransactions() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("row %d id = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestListEmptyResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	// No writes at all: empty list, zero balance, no errors.
	got, err := repo.ListTransactions(ctx, user.ID, core.Filter{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListTransactions() = %v, want empty non-nil slice", got)
	}
	checkBalance(t, repo, user.ID, 0)

	// A filter matching nothing behaves the same.
	mustCreate(t, repo, core.Transaction{UserID: user.ID, Amount: 10, Kind: core.Income})
	got, err = repo.ListTransactions(ctx, user.ID, core.Filter{Kind: ptr(core.Expense)})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListTransactions(no match) = %+v, want empty", got)
	}
}

func TestUpdatePatchSemantics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	food, err := repo.CreateCategory(ctx, "Food")
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	ts := time.Date(2026, 7, 1, 10, 30, 0, 0, time.UTC)
	tx := mustCreate(t, repo, core.Transaction{
		UserID: user.ID, Amount: 40, Kind: core.Expense, CategoryID: &food.ID, Timestamp: ts,
	})

	// Empty patch is rejected before any SQL runs.
	if _, err := repo.UpdateTransaction(ctx, user.ID, tx.ID, core.TransactionPatch{}); !errors.Is(err, core.ErrNoFields) {
		t.Errorf("UpdateTransaction(empty) error = %v, want ErrNoFields", err)
	}

	// Untouched fields survive a partial update.
	updated, err := repo.UpdateTransaction(ctx, user.ID, tx.ID,
		core.TransactionPatch{Amount: ptr(int64(60))})
	if err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	if updated.Kind != core.Expense || updated.CategoryID == nil || *updated.CategoryID != food.ID {
		t.Errorf("partial update clobbered fields: %+v", updated)
	}
	if !updated.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", updated.Timestamp, ts)
	}

	// Clearing the category is distinct from leaving it alone.
	updated, err = repo.UpdateTransaction(ctx, user.ID, tx.ID,
		core.TransactionPatch{ClearCategory: true})
	if err != nil {
		t.Fatalf("UpdateTransaction(clear) error = %v", err)
	}
	if updated.CategoryID != nil {
		t.Errorf("CategoryID = %v, want nil after clear", *updated.CategoryID)
	}

	// Retagging with an unknown category is rejected and rolled back.
	if _, err := repo.UpdateTransaction(ctx, user.ID, tx.ID,
		core.TransactionPatch{CategoryID: ptr(int64(999))}); !errors.Is(err, core.ErrUnknownCategory) {
		t.Errorf("UpdateTransaction(bad category) error = %v, want ErrUnknownCategory", err)
	}
	got, err := repo.GetTransaction(ctx, user.ID, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.CategoryID != nil || got.Amount != 60 {
		t.Errorf("rejected update leaked changes: %+v", got)
	}
}

func TestTimestampZonePreserved(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo, "alice")

	tokyo := time.FixedZone("JST", 9*3600)
	ts := time.Date(2026, 8, 3, 23, 15, 0, 0, tokyo)
	tx := mustCreate(t, repo, core.Transaction{
		UserID: user.ID, Amount: 10, Kind: core.Expense, Timestamp: ts,
	})

	got, err := repo.GetTransaction(ctx, user.ID, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want instant %v", got.Timestamp, ts)
	}
	_, offset := got.Timestamp.Zone()
	if offset != 9*3600 {
		t.Errorf("zone offset = %d, want +09:00 preserved through storage", offset)
	}
}
