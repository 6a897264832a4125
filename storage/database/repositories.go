package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/user"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"
)

// Repositories bundles the stores backing the core services.
type Repositories struct {
	Users         user.Repository
	Organisations organisation.Repository
	Lessons       lesson.Repository

	// DB is nil for the memory engine.
	DB *sqlx.DB
}

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// OpenRepositories connects to the engine selected by conf.Database.Engine.
// Postgres is migrated up before use when migrate is set.
func OpenRepositories(ctx context.Context, conf *core.Config, migrate bool) (*Repositories, error) {
	if conf.Database.Engine == core.DBEngineMemory {
		db := inmemdb.Open()
		return &Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Organisations: inmemdb.NewOrganisationRepository(db),
			Lessons:       inmemdb.NewLessonRepository(db),
		}, nil
	}

	db, err := Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Organisations: sqlxrepos.NewOrganisationRepository(db),
		Lessons:       sqlxrepos.NewLessonRepository(db),
		DB:            db,
	}, nil
}
