package organisation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var ErrNameExists = errors.New("an organisation with this name already exists")

type (
	// Repository lookups return core.ErrNotFound when nothing matches.
	Repository interface {
		CreateOrganisation(ctx context.Context, org Organisation) (Organisation, error)
		GetOrganisationByID(ctx context.Context, id int64) (Organisation, error)
		GetOrganisationByName(ctx context.Context, name string) (Organisation, error)
		QueryOrganisations(ctx context.Context) ([]Organisation, error)
		// DeleteOrganisation removes the organisation together with its lessons (and their
		// associations) and its users, in one transaction.
		DeleteOrganisation(ctx context.Context, id int64) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) Create(ctx context.Context, no NewOrganisation) (Organisation, error) {
	if err := no.Validate(); err != nil {
		return Organisation{}, err
	}
	nameTaken := core.NewValidationError(ErrNameExists, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	if _, err := svc.repo.GetOrganisationByName(ctx, no.Name); err == nil {
		return Organisation{}, nameTaken
	} else if errors.Cause(err) != core.ErrNotFound {
		return Organisation{}, errors.Wrap(err, "checking organisation name")
	}

	org, err := svc.repo.CreateOrganisation(ctx, Organisation{Name: no.Name})
	if err != nil {
		if errors.Cause(err) == ErrNameExists { // lost a race on the unique index
			return Organisation{}, nameTaken
		}
		return Organisation{}, errors.Wrap(err, "creating organisation")
	}
	svc.logger.Info("organisation created", map[string]interface{}{"id": org.ID, "name": org.Name})
	return org, nil
}

func (svc *Service) Get(ctx context.Context, id int64) (Organisation, error) {
	return svc.repo.GetOrganisationByID(ctx, id)
}

// Exists reports whether the organisation id is known.
func (svc *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if _, err := svc.repo.GetOrganisationByID(ctx, id); err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *Service) Query(ctx context.Context) ([]Organisation, error) {
	return svc.repo.QueryOrganisations(ctx)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	if _, err := svc.repo.GetOrganisationByID(ctx, id); err != nil {
		return err
	}
	if err := svc.repo.DeleteOrganisation(ctx, id); err != nil {
		return errors.Wrap(err, "deleting organisation")
	}
	svc.logger.Info("organisation deleted", map[string]interface{}{"id": id})
	return nil
}
