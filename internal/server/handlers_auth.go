package server

import (
	"net/http"
	"strings"
	"time"

	"lifelockr/internal/account"
	"lifelockr/internal/auth"
)

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResp struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

type mfaResp struct {
	Status    string    `json:"status"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"otpExpiresAt"`
}

type verifyOTPReq struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type sessionResp struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	ExpiresIn int       `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !gate(w, limitCheck{s.rlRegisterIP, s.clientIP(r)}) {
		return
	}
	var req credentialsReq
	if !readJSON(w, r, &req) {
		return
	}
	p, err := s.deps.Accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, registerResp{ID: p.ID, Email: p.Email, Role: p.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if !readJSON(w, r, &req) {
		return
	}
	key := s.clientIP(r) + "_" + auth.NormalizeEmail(req.Email)
	if !gate(w, limitCheck{s.rlLogin, key}) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password required")
		return
	}

	res, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if res.Status == account.StatusMFARequired {
		writeJSON(w, mfaResp{Status: res.Status, UserID: res.UserID, ExpiresAt: res.ChallengeExpires})
		return
	}
	writeJSON(w, s.session(res))
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPReq
	if !readJSON(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !gate(w, limitCheck{s.rlVerifyIP, s.clientIP(r)}, limitCheck{s.rlVerifyUser, req.UserID}) {
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Code) == "" {
		writeMessage(w, http.StatusBadRequest, "userId and code required")
		return
	}

	res, err := s.deps.Accounts.VerifyOTP(r.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, s.session(res))
}

// handleLogout has nothing to revoke; session tokens expire on their own.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "logged out")
}

func (s *Server) session(res *account.LoginResult) sessionResp {
	return sessionResp{
		Token:     res.Token,
		Role:      res.Role,
		ExpiresIn: int(auth.SessionTTL / time.Second),
		ExpiresAt: res.ExpiresAt,
	}
}
