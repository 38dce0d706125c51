package server

import (
	"errors"
	"net/http"
	"strings"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"

	"github.com/go-chi/chi/v5"
)

const (
	ownLogLimit = 100
	allLogLimit = 200
)

type accessReq struct {
	ContactEmail string `json:"contactEmail"`
}

type contactReq struct {
	ContactEmail string                 `json:"contactEmail"`
	CanViewVault bool                   `json:"canViewVault"`
	AccessLevel  delegation.AccessLevel `json:"accessLevel"`
}

func (s *Server) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if !gate(w, limitCheck{s.rlEmergency, claims.UserID}) {
		return
	}
	var req accessReq
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ContactEmail) == "" {
		writeMessage(w, http.StatusBadRequest, "contactEmail required")
		return
	}
	tok, err := s.deps.Delegation.RequestEmergencyAccess(r.Context(), claims.UserID, req.ContactEmail)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, tok)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	grants, err := s.deps.Delegation.List(r.Context(), claims.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, grants)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	var req contactReq
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ContactEmail) == "" {
		writeMessage(w, http.StatusBadRequest, "contactEmail required")
		return
	}
	g, err := s.deps.Delegation.Grant(r.Context(), claims.UserID, req.ContactEmail, req.CanViewVault, req.AccessLevel)
	if errors.Is(err, delegation.ErrContactNotFound) {
		writeMessage(w, http.StatusNotFound, "contact user not found")
		return
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, g)
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if err := s.deps.Delegation.Remove(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "contact removed")
}

func (s *Server) handleRevokeContact(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	if err := s.deps.Delegation.Revoke(r.Context(), claims.UserID, chi.URLParam(r, "contactId")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "access revoked")
}

func (s *Server) handleOwnLogs(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	s.listLogs(w, r, audit.Filter{UserID: claims.UserID, Limit: ownLogLimit})
}

func (s *Server) handleAllLogs(w http.ResponseWriter, r *http.Request) {
	s.listLogs(w, r, audit.Filter{Limit: allLogLimit})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request, f audit.Filter) {
	entries, err := s.deps.Logs.ListEntries(r.Context(), f)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, entries)
}
