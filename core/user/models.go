package user

import (
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

type User struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Email          string     `json:"email" db:"email"`
	Role           Role       `json:"role" db:"role"`
	OrganisationID null.Int64 `json:"organisation_id" db:"organisation_id"`
	IsVerified     bool       `json:"is_verified" db:"is_verified"`
	PasswordHash   string     `json:"-" db:"password_hash"`
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// HasRole reports whether u has any of roles.
func (u User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// OrgID returns the user's organisation id and whether they belong to one.
func (u User) OrgID() (int64, bool) {
	return u.OrganisationID.Int64, u.OrganisationID.Valid
}

// InOrganisation reports whether u belongs to the organisation orgID.
func (u User) InOrganisation(orgID int64) bool {
	return u.OrganisationID.Valid && u.OrganisationID.Int64 == orgID
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name           string     `json:"name" validate:"required,notblank,max=255"`
	Email          string     `json:"email" validate:"required,email,max=255"`
	Role           Role       `json:"role" validate:"required,role"`
	OrganisationID null.Int64 `json:"organisation_id"`
	Password       string     `json:"password" validate:"required"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

func (nu *NewUser) Validate() error {
	nu.Clean()
	return core.Validate.Struct(nu)
}

// UpdateUser defines what a User may change on their own account.
type UpdateUser struct {
	Name     *string `json:"name" validate:"omitempty,notblank,max=255"`
	Password *string `json:"password"`
}

// Validate checks uu against the user being updated.
func (uu *UpdateUser) Validate(orig User) error {
	if uu.Name != nil {
		name := core.CleanString(*uu.Name)
		uu.Name = &name
	}
	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	if uu.Password != nil {
		name := orig.Name
		if uu.Name != nil {
			name = *uu.Name
		}
		if msg := checkPassword(*uu.Password, name, orig.Email); msg != "" {
			return core.NewValidationError(nil, core.FieldError{Field: "password", Error: msg})
		}
	}
	return nil
}

func (uu UpdateUser) IsEmpty() bool {
	return uu.Name == nil && uu.Password == nil
}

// QueryFilter narrows an organisation-scoped user listing.
type QueryFilter struct {
	Role Role
}
