package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/organisation"
)

type organisationRepository struct {
	db *DB
}

var _ organisation.Repository = (*organisationRepository)(nil)

func NewOrganisationRepository(db *DB) *organisationRepository {
	return &organisationRepository{db: db}
}

func (repo *organisationRepository) CreateOrganisation(_ context.Context, org organisation.Organisation) (organisation.Organisation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, o := range repo.db.organisations {
		if o.Name == org.Name {
			return organisation.Organisation{}, organisation.ErrNameExists
		}
	}
	repo.db.orgSeq++
	org.ID = repo.db.orgSeq
	repo.db.organisations[org.ID] = org
	return org, nil
}

func (repo *organisationRepository) GetOrganisationByID(_ context.Context, id int64) (organisation.Organisation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if org, ok := repo.db.organisations[id]; ok {
		return org, nil
	}
	return organisation.Organisation{}, core.ErrNotFound
}

func (repo *organisationRepository) GetOrganisationByName(_ context.Context, name string) (organisation.Organisation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, org := range repo.db.organisations {
		if org.Name == name {
			return org, nil
		}
	}
	return organisation.Organisation{}, core.ErrNotFound
}

func (repo *organisationRepository) QueryOrganisations(_ context.Context) ([]organisation.Organisation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orgs := make([]organisation.Organisation, 0, len(repo.db.organisations))
	for _, org := range repo.db.organisations {
		orgs = append(orgs, org)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

func (repo *organisationRepository) DeleteOrganisation(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.organisations[id]; !ok {
		return core.ErrNotFound
	}
	// lessons (and their associations), then users (and theirs), then the organisation
	for lid, les := range repo.db.lessons {
		if les.OrganisationID == id {
			repo.db.deleteLesson(lid)
		}
	}
	for uid, usr := range repo.db.users {
		if usr.InOrganisation(id) {
			repo.db.deleteUser(uid)
		}
	}
	delete(repo.db.organisations, id)
	return nil
}
