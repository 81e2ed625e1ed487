package migrate

import (
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/common/errs"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/samber/lo"
)

const (
	DefaultSource  = "database/postgresql/migrations"
	migrationTable = "dust_indexer_schema_migrations"
)

var supportedDrivers = map[string]struct{}{
	"postgres":   {},
	"postgresql": {},
}

func cloneURLWithQuery(u *url.URL, newQuery url.Values) *url.URL {
	clone := *u
	query := clone.Query()
	for key, values := range newQuery {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	clone.RawQuery = query.Encode()
	return &clone
}

// databaseURL validates the database url and points it to the indexer's migration table.
func databaseURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.Wrap(errs.InvalidArgument, "--database or postgres.url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse database URL")
	}
	if _, ok := supportedDrivers[u.Scheme]; !ok {
		return "", errors.Wrapf(errs.Unsupported, "unsupported database driver: %s", u.Scheme)
	}
	return cloneURLWithQuery(u, url.Values{"x-migrations-table": {migrationTable}}).String(), nil
}

// apply runs n migrations in the given direction, or all of them if n is 0.
func apply(rawURL, sourcePath string, n int, down bool) error {
	dbURL, err := databaseURL(rawURL)
	if err != nil {
		return errors.WithStack(err)
	}

	m, err := migrate.New("file://"+sourcePath, dbURL)
	if err != nil {
		return errors.Wrap(err, "failed to create Migrate instance")
	}
	defer m.Close()
	m.Log = &consoleLogger{prefix: "[dust-indexer] "}

	direction := lo.Ternary(down, "down", "up")
	switch {
	case n > 0:
		m.Log.Printf("Applying %d %s migrations...\n", n, direction)
		err = m.Steps(lo.Ternary(down, -n, n))
	case down:
		m.Log.Printf("Applying down migrations...\n")
		err = m.Down()
	default:
		m.Log.Printf("Applying up migrations...\n")
		err = m.Up()
	}
	if err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return errors.Wrapf(err, "failed to apply %s migrations", direction)
		}
		m.Log.Printf("No %s migrations to apply\n", direction)
	}
	return nil
}
