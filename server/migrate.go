package server

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every pending schema migration under
// migrationsPath (a "file://..." source URL) to connectionURI, the same
// golang-migrate pairing the teacher's go.mod already carries.
func RunMigrations(migrationsPath, connectionURI string) error {
	m, err := migrate.New(migrationsPath, connectionURI)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
