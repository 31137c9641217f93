package domain

// MinPasswordLength is the shortest password accepted at registration and password change.
const MinPasswordLength = 8

// RegisterForm is what a new user fills in. It is validated locally before RegisterRequest is sent.
type RegisterForm struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8"`
	PasswordConfirm  string `json:"password_confirm" validate:"eqfield=Password"`
	FirstName        string `json:"first_name" validate:"notblank"`
	LastName         string `json:"last_name" validate:"notblank"`
	Role             Role   `json:"role" validate:"-"`
	RepresentedLevel int64  `json:"niveau_represente"`
}

// NeedsLevel reports whether the chosen role must name the level it represents.
func (f *RegisterForm) NeedsLevel() bool {
	return NormalizeRole(f.Role.Name) == NormalizeRole(RoleRepresentative)
}

// Request builds the wire payload. The level is sent only for representatives.
func (f *RegisterForm) Request() RegisterRequest {
	req := RegisterRequest{
		Email:     f.Email,
		Password:  f.Password,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		RoleIDs:   []int64{f.Role.ID},
	}
	if f.NeedsLevel() && f.RepresentedLevel > 0 {
		lvl := f.RepresentedLevel
		req.RepresentedLevel = &lvl
	}
	return req
}

// RegisterRequest is the body of POST /users/utilisateurs/.
type RegisterRequest struct {
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	RoleIDs          []int64 `json:"roles_ids"`
	RepresentedLevel *int64  `json:"niveau_represente,omitempty"`
}

// Registration is the backend answer to a registration. Access is empty when the account was
// created without a session (e.g. pending approval).
type Registration struct {
	User    *User
	Access  string
	Refresh string
}

// ProfilePatch holds the editable profile fields; nil fields are left unchanged.
type ProfilePatch struct {
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,notblank"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,notblank"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil
}

// PasswordChange is validated locally; only OldPassword and NewPassword are sent.
type PasswordChange struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
	Confirm     string `json:"new_password_confirm" validate:"eqfield=NewPassword"`
}
