package devserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	identitydomain "koursa/client/internal/identity/domain"
	"koursa/client/internal/security"
	userdomain "koursa/client/internal/user/domain"
)

func (s *Server) handleObtainToken(w http.ResponseWriter, r *http.Request) {
	var req identitydomain.Credentials
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeFieldError(w, "email", "This field may not be blank.")
		return
	}
	if req.Password == "" {
		writeFieldError(w, "password", "This field may not be blank.")
		return
	}

	s.data.mu.Lock()
	acct, ok := s.data.accountByEmail(req.Email)
	var user userdomain.User
	var hash string
	if ok {
		user, hash = acct.user, acct.passwordHash
	}
	s.data.mu.Unlock()

	if !ok || s.hasher.CheckPassword(hash, req.Password) != nil {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	pair, err := s.issueTokens(&user)
	if err != nil {
		log.Printf("devserver: issue tokens: %v", err)
		writeDetail(w, http.StatusInternalServerError, "token error")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req identitydomain.RefreshRequest
	if err := decodeJSON(r, &req); err != nil || req.Refresh == "" {
		writeFieldError(w, "refresh", "This field is required.")
		return
	}
	claims, err := s.tokens.ValidateRefresh(req.Refresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	userID, _ := claims.UserID()

	s.data.mu.Lock()
	sess, ok := s.data.refresh[security.HashToken(req.Refresh)]
	acct, userOK := s.data.accounts[userID]
	var roles []string
	if userOK {
		roles = acct.user.RoleNames()
	}
	s.data.mu.Unlock()

	if !ok || sess.revoked || !sess.expiresAt.After(s.now()) || sess.userID != userID || !userOK {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	access, _, err := s.tokens.IssueAccess(userID, roles)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token error")
		return
	}
	writeJSON(w, http.StatusOK, identitydomain.RefreshResponse{Access: access})
}

// RevokeRefreshTokens invalidates every refresh token of the account with email.
func (s *Server) RevokeRefreshTokens(email string) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	acct, ok := s.data.accountByEmail(email)
	if !ok {
		return
	}
	for k, sess := range s.data.refresh {
		if sess.userID == acct.user.ID {
			sess.revoked = true
			s.data.refresh[k] = sess
		}
	}
}

func (s *Server) issueTokens(u *userdomain.User) (*identitydomain.TokenPair, error) {
	access, _, err := s.tokens.IssueAccess(u.ID, u.RoleNames())
	if err != nil {
		return nil, err
	}
	refresh, _, expiresAt, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return nil, err
	}
	s.data.mu.Lock()
	s.data.refresh[security.HashToken(refresh)] = refreshSession{userID: u.ID, expiresAt: expiresAt}
	s.data.mu.Unlock()
	return &identitydomain.TokenPair{Access: access, Refresh: refresh, User: u}, nil
}

func (s *Server) handleConfirmPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeFieldError(w, "password", "This field is required.")
		return
	}
	s.data.mu.Lock()
	acct := s.current(r)
	userID, hash := acct.user.ID, acct.passwordHash
	s.data.mu.Unlock()

	if err := s.hasher.CheckPassword(hash, req.Password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			log.Printf("devserver: check password: %v", err)
		}
		writeFieldError(w, "password", "Incorrect password.")
		return
	}
	token := uuid.NewString()
	s.grants.Put(r.Context(), token, userID, s.now().Add(s.validationTTL))
	writeJSON(w, http.StatusOK, identitydomain.ValidationGrant{Token: token})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	if len(req.NewPassword) < userdomain.MinPasswordLength {
		writeFieldError(w, "new_password", "Ensure this field has at least 8 characters.")
		return
	}
	s.data.mu.Lock()
	acct := s.current(r)
	hash := acct.passwordHash
	s.data.mu.Unlock()

	if s.hasher.CheckPassword(hash, req.OldPassword) != nil {
		writeFieldError(w, "old_password", "Wrong password.")
		return
	}
	newHash, err := s.hasher.HashPassword(req.NewPassword)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "hash error")
		return
	}
	s.data.mu.Lock()
	acct.passwordHash = newHash
	s.data.mu.Unlock()
	writeDetail(w, http.StatusOK, "Password updated successfully.")
}

func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"fcm_token"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeFieldError(w, "fcm_token", "This field is required.")
		return
	}
	s.data.mu.Lock()
	s.current(r).pushToken = req.Token
	s.data.mu.Unlock()
	writeDetail(w, http.StatusOK, "FCM token registered.")
}

// PushToken returns the push token registered for email, for tests.
func (s *Server) PushToken(email string) string {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if acct, ok := s.data.accountByEmail(email); ok {
		return acct.pushToken
	}
	return ""
}
