package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/user"
)

const userColumns = "id, name, email, role, organisation_id, is_verified, password_hash"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (name, email, role, organisation_id, is_verified, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		usr.Name, usr.Email, usr.Role, usr.OrganisationID, usr.IsVerified, usr.PasswordHash,
	).Scan(&usr.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int64) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return usr, trapNoRowsErr(err)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return usr, trapNoRowsErr(err)
}

func (repo *userRepository) GetUsersByIDs(ctx context.Context, ids []int64) ([]user.User, error) {
	users := make([]user.User, 0, len(ids))
	err := repo.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	return users, errors.Wrap(err, "selecting users by ids")
}

func (repo *userRepository) QueryUsers(ctx context.Context, orgID int64, filter user.QueryFilter) ([]user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE organisation_id = $1"
	args := []interface{}{orgID}
	if filter.Role != 0 {
		q += " AND role = $2"
		args = append(args, filter.Role)
	}
	q += " ORDER BY id"

	users := make([]user.User, 0)
	err := repo.db.SelectContext(ctx, &users, q, args...)
	return users, errors.Wrap(err, "querying users")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = $2, email = $3, role = $4, organisation_id = $5, is_verified = $6, password_hash = $7
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Email, usr.Role, usr.OrganisationID, usr.IsVerified, usr.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err := mustAffect(res); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id int64) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM lesson_teachers WHERE teacher_id = $1", id); err != nil {
			return errors.Wrap(err, "deleting teacher associations")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM lesson_students WHERE student_id = $1", id); err != nil {
			return errors.Wrap(err, "deleting student associations")
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return errors.Wrap(err, "deleting user")
		}
		return mustAffect(res)
	})
}
