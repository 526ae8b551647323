package core

import "time"

// Filter narrows a transaction listing. All criteria are optional and combine
// with logical AND; a zero Filter matches everything the owner has.
type Filter struct {
	Kind        *Kind
	CategoryID  *int64
	AmountLT    *int64
	AmountGT    *int64
	TimestampLT *time.Time
	TimestampGT *time.Time

	// OrderBy is the requested sort field by its API name. Names that are
	// not transaction fields fall back to insertion order (id ascending),
	// so a listing never fails on a bad sort key.
	OrderBy string
}

// orderColumns maps API field names to storage columns.
var orderColumns = map[string]string{
	"id":        "id",
	"amount":    "amount",
	"kind":      "kind",
	"category":  "category_id",
	"timestamp": "timestamp",
}

// OrderColumn resolves OrderBy to a storage column, defaulting to "id".
func (f Filter) OrderColumn() string {
	if col, ok := orderColumns[f.OrderBy]; ok {
		return col
	}
	return "id"
}

// Matches reports whether a transaction satisfies every set criterion.
// Owner scoping is not a filter concern and is applied before this is ever
// consulted.
func (f Filter) Matches(t Transaction) bool {
	if f.Kind != nil && t.Kind != *f.Kind {
		return false
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if f.AmountLT != nil && t.Amount >= *f.AmountLT {
		return false
	}
	if f.AmountGT != nil && t.Amount <= *f.AmountGT {
		return false
	}
	if f.TimestampLT != nil && !t.Timestamp.Before(*f.TimestampLT) {
		return false
	}
	if f.TimestampGT != nil && !t.Timestamp.After(*f.TimestampGT) {
		return false
	}
	return true
}
