package user

import (
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
)

// Role is the access tier of a User.
type Role int

// Roles
const (
	RoleAdmin Role = iota + 1
	RoleTeacher
	RoleStudent
)

var (
	AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

	ErrInvalidRole = errors.New("invalid role")
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "teacher":
		return RoleTeacher, nil
	case "student":
		return RoleStudent, nil
	}
	return 0, errors.Wrapf(ErrInvalidRole, "%q", s)
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	}
	return ""
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	}
	return errors.Errorf("cannot scan %T into user.Role", src)
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.IsValid() {
		return nil, ErrInvalidRole
	}
	return r.String(), nil
}
