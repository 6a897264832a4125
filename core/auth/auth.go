// Package auth maps bearer tokens to users and enforces role predicates.
package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/token"
	"github.com/trezcool/ratiba/core/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
)

type (
	TokenService interface {
		IssueSessionToken(userID int64) (string, error)
		Verify(tok string) (*token.Claims, error)
	}

	UserService interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
		GetByEmail(ctx context.Context, email string) (user.User, error)
		CheckPassword(usr user.User, pwd string) bool
	}

	Resolver struct {
		tokens TokenService
		users  UserService
	}
)

func NewResolver(tokens TokenService, users UserService) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve returns the user a session token was issued for.
// Bad, expired or non-session tokens fail with core.ErrUnauthenticated,
// a token for a user that no longer exists fails with core.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, tok string) (user.User, error) {
	if tok == "" {
		return user.User{}, core.ErrUnauthenticated
	}
	claims, err := r.tokens.Verify(tok)
	if err != nil {
		return user.User{}, core.ErrUnauthenticated
	}
	id, err := claims.UserID()
	if err != nil {
		return user.User{}, core.ErrUnauthenticated
	}
	usr, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return user.User{}, core.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

// RequireRole fails with core.ErrForbidden unless usr has one of roles.
func RequireRole(usr user.User, roles ...user.Role) error {
	if !usr.HasRole(roles...) {
		return core.ErrForbidden
	}
	return nil
}

func (r *Resolver) require(ctx context.Context, tok string, role user.Role) (user.User, error) {
	usr, err := r.Resolve(ctx, tok)
	if err != nil {
		return user.User{}, err
	}
	if err := RequireRole(usr, role); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (r *Resolver) RequireAdmin(ctx context.Context, tok string) (user.User, error) {
	return r.require(ctx, tok, user.RoleAdmin)
}

func (r *Resolver) RequireTeacher(ctx context.Context, tok string) (user.User, error) {
	return r.require(ctx, tok, user.RoleTeacher)
}

func (r *Resolver) RequireStudent(ctx context.Context, tok string) (user.User, error) {
	return r.require(ctx, tok, user.RoleStudent)
}

// Login checks the credentials of a verified user and issues a session token.
func (r *Resolver) Login(ctx context.Context, email, pwd string) (string, error) {
	usr, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return "", ErrInvalidCredentials
		}
		return "", errors.Wrap(err, "finding user by email")
	}
	if !r.users.CheckPassword(usr, pwd) {
		return "", ErrInvalidCredentials
	}
	if !usr.IsVerified {
		return "", ErrEmailNotVerified
	}
	tok, err := r.tokens.IssueSessionToken(usr.ID)
	if err != nil {
		return "", errors.Wrap(err, "issuing session token")
	}
	return tok, nil
}
