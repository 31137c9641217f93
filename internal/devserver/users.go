package devserver

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	userdomain "koursa/client/internal/user/domain"
)

// handleRegister creates an account awaiting approval. No tokens are returned.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req userdomain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeFieldError(w, "email", "Enter a valid email address.")
		return
	}
	if len(req.Password) < userdomain.MinPasswordLength {
		writeFieldError(w, "password", "Ensure this field has at least 8 characters.")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" {
		writeFieldError(w, "first_name", "This field may not be blank.")
		return
	}
	if strings.TrimSpace(req.LastName) == "" {
		writeFieldError(w, "last_name", "This field may not be blank.")
		return
	}
	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "hash error")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if _, taken := s.data.accountByEmail(req.Email); taken {
		writeFieldError(w, "email", "user with this email already exists.")
		return
	}
	roles := s.data.rolesByID(req.RoleIDs...)
	if len(req.RoleIDs) == 0 || len(roles) != len(req.RoleIDs) {
		writeFieldError(w, "roles_ids", "Select at least one valid role.")
		return
	}
	u := userdomain.User{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Status:    userdomain.AccountStatusPending,
		Roles:     roles,
	}
	if u.HasRole(userdomain.RoleRepresentative) {
		if req.RepresentedLevel == nil || !s.data.level(*req.RepresentedLevel) {
			writeFieldError(w, "niveau_represente", "A representative must select the level they represent.")
			return
		}
		lvl := *req.RepresentedLevel
		u.RepresentedLevel = &lvl
	}
	created := s.data.addAccount(u, hash)
	writeJSON(w, http.StatusCreated, created)
}

// ActivateAccount marks the account with email as active, standing in for an administrator's
// approval. It reports whether the account exists.
func (s *Server) ActivateAccount(email string) bool {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	acct, ok := s.data.accountByEmail(email)
	if ok {
		acct.user.Status = userdomain.AccountStatusActive
	}
	return ok
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := s.current(r)
	target, ok := s.data.accounts[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if id != me.user.ID && !me.user.HasRole(userdomain.RoleAdministrator) && !me.user.HasRole(userdomain.RoleDepartmentHead) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	writeJSON(w, http.StatusOK, target.user)
}

// userUpdate is the PATCH body: profile fields for one's own account, or statut for an account
// administrator acting on someone else.
type userUpdate struct {
	userdomain.ProfilePatch
	Status *userdomain.AccountStatus `json:"statut,omitempty"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	var req userUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	me := s.current(r)
	if req.Status != nil {
		s.updateStatus(w, me, id, req)
		return
	}
	if id != me.user.ID {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	patch := req.ProfilePatch
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			writeFieldError(w, "email", "Enter a valid email address.")
			return
		}
		if other, taken := s.data.accountByEmail(email); taken && other.user.ID != me.user.ID {
			writeFieldError(w, "email", "user with this email already exists.")
			return
		}
		delete(s.data.byEmail, me.user.Email)
		me.user.Email = email
		s.data.byEmail[email] = me.user.ID
	}
	if patch.FirstName != nil {
		me.user.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		me.user.LastName = strings.TrimSpace(*patch.LastName)
	}
	writeJSON(w, http.StatusOK, me.user)
}

// updateStatus applies a statut change. The caller holds data.mu.
func (s *Server) updateStatus(w http.ResponseWriter, me *account, id int64, req userUpdate) {
	if !managesUsers(&me.user) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if !req.ProfilePatch.Empty() {
		writeDetail(w, http.StatusBadRequest, "statut cannot be changed together with profile fields.")
		return
	}
	target, ok := s.data.accounts[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if id == me.user.ID {
		writeDetail(w, http.StatusForbidden, "You cannot change the status of your own account.")
		return
	}
	switch *req.Status {
	case userdomain.AccountStatusActive, userdomain.AccountStatusInactive:
	default:
		writeFieldError(w, "statut", fmt.Sprintf("\"%s\" is not a valid choice.", *req.Status))
		return
	}
	target.user.Status = *req.Status
	writeJSON(w, http.StatusOK, target.user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	status := userdomain.AccountStatus(r.URL.Query().Get("statut"))
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if !managesUsers(&s.current(r).user) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	list := s.data.users(status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(list),
		"next":     nil,
		"previous": nil,
		"results":  list,
	})
}

// handleApproveAccount activates a pending account.
func (s *Server) handleApproveAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if !managesUsers(&s.current(r).user) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	target, ok := s.data.accounts[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if target.user.Status != userdomain.AccountStatusPending {
		writeDetail(w, http.StatusBadRequest, "This account is not awaiting approval.")
		return
	}
	target.user.Status = userdomain.AccountStatusActive
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Account approved."})
}

func (s *Server) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.roles)
}

func (s *Server) handleListLevels(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.levels)
}

func (s *Server) handleListUnits(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.units)
}

func (s *Server) handleListFaculties(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.faculties)
}

func (s *Server) handleListDepartments(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.departments)
}

func (s *Server) handleListTracks(w http.ResponseWriter, _ *http.Request) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	writeJSON(w, http.StatusOK, s.data.tracks)
}
