package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cashledger/internal/core"
)

// transactionResponse is the wire shape of a transaction. Category is null
// when untagged; timestamps are RFC3339 in the event's own zone.
type transactionResponse struct {
	ID        int64  `json:"id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Category  *int64 `json:"category"`
	Timestamp string `json:"timestamp"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		Amount:    t.Amount,
		Kind:      string(t.Kind),
		Category:  t.CategoryID,
		Timestamp: t.Timestamp.Format(time.RFC3339),
	}
}

func toTransactionResponses(transactions []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(transactions))
	for i, t := range transactions {
		out[i] = toTransactionResponse(t)
	}
	return out
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type balanceResponse struct {
	Amount int64 `json:"amount"`
}

// reportRowResponse keeps the null-vs-zero distinction: a kind with no
// transactions in the month serializes as null.
type reportRowResponse struct {
	Month    string `json:"month"`
	Expenses *int64 `json:"expenses"`
	Incomes  *int64 `json:"incomes"`
}

func toReportResponse(rows []core.ReportRow) []reportRowResponse {
	out := make([]reportRowResponse, len(rows))
	for i, row := range rows {
		out[i] = reportRowResponse{
			Month:    row.Month.Format(time.RFC3339),
			Expenses: row.Expenses,
			Incomes:  row.Incomes,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps ledger errors onto HTTP statuses: rejected input is
// 400, missing or foreign-owned records are 404, a rolled-back atomic unit is
// 409 (safe to retry), anything else is a plain 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrConsistency):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "operation could not complete, retry")
	default:
		slog.Error("Unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
