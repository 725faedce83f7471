package assemble

import (
	"errors"
	"fmt"

	"github.com/beetlebugorg/osmgeo/internal/geometry"
	"github.com/beetlebugorg/osmgeo/internal/pbf"
)

var (
	// ErrNoMembers means a relation has no inner or outer way members.
	ErrNoMembers = errors.New("assemble: relation has no inner or outer way members")

	// ErrNoCoordinates means a way references no nodes.
	ErrNoCoordinates = errors.New("assemble: way has no node references")
)

// DanglingReferenceError reports an entity referencing something the file
// does not contain. It unwraps to pbf.ErrEntityNotFound.
type DanglingReferenceError struct {
	Kind  pbf.EntityKind
	ID    int64
	Ref   pbf.EntityKind
	RefID int64
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %d references missing %s %d", e.Kind, e.ID, e.Ref, e.RefID)
}

func (e *DanglingReferenceError) Unwrap() error { return pbf.ErrEntityNotFound }

// IsRecoverable reports whether err only dooms a single entity: it is
// logged and the entity dropped while the run continues.
func IsRecoverable(err error) bool {
	var coord *geometry.InvalidCoordinateError
	switch {
	case errors.Is(err, pbf.ErrEntityNotFound),
		errors.Is(err, ErrNoMembers),
		errors.Is(err, ErrNoCoordinates),
		errors.Is(err, geometry.ErrUnclosedRing),
		errors.Is(err, geometry.ErrNoOuterRings),
		errors.Is(err, geometry.ErrUnorientable),
		errors.Is(err, geometry.ErrEmptyGeometry),
		errors.As(err, &coord):
		return true
	}
	return false
}
