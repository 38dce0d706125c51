package server

import (
	"net/http"

	"lifelockr/internal/auth"
	"lifelockr/internal/vault"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	items, err := s.deps.Vault.List(r.Context(), claims)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	var d vault.Draft
	if !readJSON(w, r, &d) {
		return
	}
	item, err := s.deps.Vault.Create(r.Context(), claims, d)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	item, err := s.deps.Vault.Get(r.Context(), claims, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	var p vault.Patch
	if !readJSON(w, r, &p) {
		return
	}
	item, err := s.deps.Vault.Update(r.Context(), claims, chi.URLParam(r, "id"), p)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if err := s.deps.Vault.Delete(r.Context(), claims, chi.URLParam(r, "id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "item deleted")
}
