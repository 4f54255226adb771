package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by writes that target a missing row.
var ErrNotFound = errors.New("node not found")

// ErrUniqueViolation is matched by errors.Is on every *UniqueViolationError.
var ErrUniqueViolation = errors.New("unique violation")

// Unique constraint names declared by the node migration.
const (
	ConstraintSlug       = "uq_collection_hierarchy_node_slug"
	ConstraintPath       = "uq_collection_hierarchy_node_path"
	ConstraintParentName = "uq_collection_hierarchy_node_parent_name"
)

// UniqueViolationError reports which unique constraint rejected a write.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s: %v", e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// Is reports ErrUniqueViolation as a match.
func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

// translate maps PostgreSQL unique violations onto UniqueViolationError
// and leaves every other error untouched.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return &UniqueViolationError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}
