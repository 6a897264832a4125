package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/organisation"
)

type organisationRepository struct {
	db *sqlx.DB
}

var _ organisation.Repository = (*organisationRepository)(nil)

func NewOrganisationRepository(db *sqlx.DB) *organisationRepository {
	return &organisationRepository{db: db}
}

func (repo *organisationRepository) CreateOrganisation(ctx context.Context, org organisation.Organisation) (organisation.Organisation, error) {
	err := repo.db.QueryRowxContext(ctx, "INSERT INTO organisations (name) VALUES ($1) RETURNING id", org.Name).Scan(&org.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return organisation.Organisation{}, organisation.ErrNameExists
		}
		return organisation.Organisation{}, errors.Wrap(err, "inserting organisation")
	}
	return org, nil
}

func (repo *organisationRepository) GetOrganisationByID(ctx context.Context, id int64) (organisation.Organisation, error) {
	var org organisation.Organisation
	err := repo.db.GetContext(ctx, &org, "SELECT id, name FROM organisations WHERE id = $1", id)
	return org, trapNoRowsErr(err)
}

func (repo *organisationRepository) GetOrganisationByName(ctx context.Context, name string) (organisation.Organisation, error) {
	var org organisation.Organisation
	err := repo.db.GetContext(ctx, &org, "SELECT id, name FROM organisations WHERE name = $1", name)
	return org, trapNoRowsErr(err)
}

func (repo *organisationRepository) QueryOrganisations(ctx context.Context) ([]organisation.Organisation, error) {
	orgs := make([]organisation.Organisation, 0)
	err := repo.db.SelectContext(ctx, &orgs, "SELECT id, name FROM organisations ORDER BY id")
	return orgs, errors.Wrap(err, "querying organisations")
}

// DeleteOrganisation deletes, in order: the associations of the organisation's lessons and users,
// its lessons, its users, then the organisation itself.
func (repo *organisationRepository) DeleteOrganisation(ctx context.Context, id int64) error {
	steps := []struct {
		what  string
		query string
	}{
		{"teacher associations", `DELETE FROM lesson_teachers WHERE lesson_id IN (SELECT id FROM lessons WHERE organisation_id = $1)
			OR teacher_id IN (SELECT id FROM users WHERE organisation_id = $1)`},
		{"student associations", `DELETE FROM lesson_students WHERE lesson_id IN (SELECT id FROM lessons WHERE organisation_id = $1)
			OR student_id IN (SELECT id FROM users WHERE organisation_id = $1)`},
		{"lessons", "DELETE FROM lessons WHERE organisation_id = $1"},
		{"users", "DELETE FROM users WHERE organisation_id = $1"},
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
				return errors.Wrapf(err, "deleting %s", step.what)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM organisations WHERE id = $1", id)
		if err != nil {
			return errors.Wrap(err, "deleting organisation")
		}
		return mustAffect(res)
	})
}
