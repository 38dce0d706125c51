package server

import (
	"errors"
	"net/http"

	"lifelockr/internal/account"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/otp"
	"lifelockr/internal/vault"

	"github.com/go-chi/chi/v5/middleware"
)

type errorMapping struct {
	target error
	status int
	msg    string
}

var errorTable = []errorMapping{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{otp.ErrInvalidOrExpiredCode, http.StatusUnauthorized, "invalid or expired code"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "invalid or expired token"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid or expired token"},
	{auth.ErrForbidden, http.StatusForbidden, "access denied"},
	{delegation.ErrContactNotFound, http.StatusForbidden, "emergency access not authorized"},
	{delegation.ErrUnauthorizedDelegation, http.StatusForbidden, "emergency access not authorized"},
	{delegation.ErrSelfGrant, http.StatusBadRequest, "cannot add yourself as a contact"},
	{delegation.ErrInvalidAccessLevel, http.StatusBadRequest, "invalid access level"},
	{delegation.ErrGrantNotFound, http.StatusNotFound, "contact not found"},
	{vault.ErrItemNotFound, http.StatusNotFound, "item not found"},
	{vault.ErrInvalidItem, http.StatusBadRequest, "invalid item"},
	{account.ErrInvalidEmail, http.StatusBadRequest, "valid email required"},
	{account.ErrInvalidPassword, http.StatusBadRequest, "password must be 8 to 256 characters"},
	{auth.ErrEmailTaken, http.StatusConflict, "email already registered"},
}

// writeErr translates err into a generic response. Anything unmapped,
// including decryption failures, is logged and returned as a 500.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			writeMessage(w, m.status, m.msg)
			return
		}
	}
	s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	writeMessage(w, http.StatusInternalServerError, "internal error")
}
