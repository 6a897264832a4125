package database

import (
	"context"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/fs"
)

const migrationsDir = "migrations"

var gooseRunFunc = goose.RunContext // mockable

func init() {
	goose.SetBaseFS(appfs.FS)
}

// dsn returns DATABASE_URL when set, else builds the URL from the DB_* parts.
func dsn(conf *core.Config) string {
	if conf.Database.URL != "" {
		return conf.Database.URL
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   core.DBEnginePostgres,
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	if conf.Database.User != "" {
		u.User = url.UserPassword(conf.Database.User, conf.Database.Password)
	}
	return u.String()
}

// Open connects to Postgres and waits for it to answer.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(core.DBEnginePostgres, dsn(conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready, backing off exponentially between attempts.
func ping(ctx context.Context, db *sqlx.DB) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(30*time.Second))
	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	return RunMigrations(ctx, db, "up")
}

// RunMigrations runs a goose command (up, down, status, redo, ...) against the embedded migrations.
func RunMigrations(ctx context.Context, db *sqlx.DB, command string, args ...string) error {
	if err := goose.SetDialect(core.DBEnginePostgres); err != nil {
		return err
	}
	if err := gooseRunFunc(ctx, command, db.DB, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "migrate %s", command)
	}
	return nil
}
