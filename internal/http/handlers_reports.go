package http

import (
	"fmt"
	"net/http"
	"time"

	"cashledger/internal/core"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, user core.User) {
	balance, err := s.service.Balance(r.Context(), user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Amount: balance.Amount})
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request, user core.User) {
	query := r.URL.Query()
	before := parseTimeParam(query, "date_lt")
	after := parseTimeParam(query, "date_gt")

	key := reportCacheKey(user.ID, before, after, s.service.Generation(user.ID))
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, toReportResponse(cached))
		return
	}

	report, err := s.service.MonthlyReport(r.Context(), user, before, after)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

func reportCacheKey(userID int64, before, after *time.Time, generation uint64) string {
	lt, gt := "", ""
	if before != nil {
		lt = before.Format(time.RFC3339)
	}
	if after != nil {
		gt = after.Format(time.RFC3339)
	}
	return fmt.Sprintf("%d|%s|%s|%d", userID, lt, gt, generation)
}
