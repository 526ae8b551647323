package http

import (
	"net/http"

	"cashledger/internal/core"
)

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, _ core.User) {
	var req createCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	category, err := s.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, _ core.User) {
	categories, err := s.service.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]categoryResponse, len(categories))
	for i, c := range categories {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, _ core.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.service.DeleteCategory(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
