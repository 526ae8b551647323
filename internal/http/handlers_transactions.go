package http

import (
	"net/http"
	"strconv"

	"cashledger/internal/core"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, user core.User) {
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp, want RFC3339")
		return
	}

	created, err := s.service.CreateTransaction(r.Context(), user, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, user core.User) {
	filter := parseFilter(r.URL.Query())

	transactions, err := s.service.ListTransactions(r.Context(), user, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(transactions))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, user core.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	transaction, err := s.service.GetTransaction(r.Context(), user, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(transaction))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, user core.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid field value")
		return
	}

	updated, err := s.service.UpdateTransaction(r.Context(), user, id, patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, user core.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteTransaction(r.Context(), user, id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path segment; a non-numeric id reads as not found,
// the same answer a missing record gives.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
