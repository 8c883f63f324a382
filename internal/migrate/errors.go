package migrate

import (
	"errors"
	"fmt"
)

// ErrMigration matches every [MigrationError] via errors.Is.
var ErrMigration = errors.New("migration failed")

var ErrDuplicateVersion = errors.New("duplicate migration version")

// MigrationError is fatal: the database must not be opened for normal use.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %s", ErrMigration, e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) Is(target error) bool {
	return target == ErrMigration
}
