package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Expense Kind = "E"
	Income  Kind = "I"
)

// MaxCategoryNameLen bounds category names at the storage contract.
const MaxCategoryNameLen = 50

type (
	// Kind is the single-letter transaction type code.
	Kind string

	// User is an authenticated identity, resolved by the transport layer
	// and consumed here by reference only.
	User struct {
		ID   int64
		Name string
	}

	Category struct {
		ID   int64
		Name string
	}

	// Transaction is one financial event in a user's ledger. CategoryID is
	// nil either because the caller never tagged it or because the category
	// was deleted afterwards.
	Transaction struct {
		ID         int64
		UserID     int64
		Amount     int64
		Kind       Kind
		CategoryID *int64
		Timestamp  time.Time
	}

	// Balance is the derived running balance for one user. It is recomputed
	// from the transaction log on every write and never edited directly.
	// Negative amounts are a legitimate state (overspending).
	Balance struct {
		UserID int64
		Amount int64
	}
)

var (
	// ErrNotFound covers both a missing record and a record owned by another
	// user; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrConsistency marks a mutate+recompute unit that could not commit.
	// The whole operation rolled back, so retrying is safe.
	ErrConsistency = errors.New("ledger consistency failure")

	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrInvalidKind         = errors.New("kind must be E (expense) or I (income)")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrEmptyCategoryName   = errors.New("empty category name")
	ErrCategoryNameTooLong = errors.New("category name too long (max 50 characters)")
	ErrNoFields            = errors.New("no updatable fields provided")
)

// IsValidation reports whether err is a rejected-input error, as opposed to a
// missing record or an internal failure.
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrNegativeAmount,
		ErrInvalidKind,
		ErrUnknownCategory,
		ErrEmptyCategoryName,
		ErrCategoryNameTooLong,
		ErrNoFields,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (k Kind) Validate() error {
	switch k {
	case Expense, Income:
		return nil
	}
	return ErrInvalidKind
}

func (t Transaction) Validate() error {
	if t.Amount < 0 {
		return ErrNegativeAmount
	}
	return t.Kind.Validate()
}

// ValidateCategoryName checks the name constraint shared by all category writes.
func ValidateCategoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyCategoryName
	}
	if len(name) > MaxCategoryNameLen {
		return ErrCategoryNameTooLong
	}
	return nil
}

// TransactionPatch is a partial update. Nil fields are left untouched.
// ClearCategory distinguishes "set category to null" from "leave it alone";
// it wins over CategoryID when both are set. Ownership is never patchable.
type TransactionPatch struct {
	Amount        *int64
	Kind          *Kind
	CategoryID    *int64
	ClearCategory bool
	Timestamp     *time.Time
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Amount == nil && p.Kind == nil && p.CategoryID == nil &&
		!p.ClearCategory && p.Timestamp == nil
}

func (p TransactionPatch) Validate() error {
	if p.Empty() {
		return ErrNoFields
	}
	if p.Amount != nil && *p.Amount < 0 {
		return ErrNegativeAmount
	}
	if p.Kind != nil {
		return p.Kind.Validate()
	}
	return nil
}

// ReportRow is one calendar-month bucket of a monthly report. Expenses and
// Incomes stay nil when no transaction of that kind falls in the month, so a
// report can distinguish "no data" from "net zero".
type ReportRow struct {
	Month    time.Time
	Expenses *int64
	Incomes  *int64
}
