package spoke

import "errors"

var (
	// Configuration errors

	ErrMalformedBlueprint  = errors.New("malformed blueprint")
	ErrUnknownBlueprint    = errors.New("unknown blueprint")
	ErrUndeclaredComponent = errors.New("component not declared by blueprint")
	ErrInvalidComponent    = errors.New("invalid component data")
	ErrConflictingType     = errors.New("label bound to a different component type")

	// Entity errors

	ErrEntityNotFound  = errors.New("entity not found")
	ErrEntityDestroyed = errors.New("entity is destroyed")
	ErrNoSuchInstance  = errors.New("component instance not found")

	// Registry errors

	ErrRegistryConflict = errors.New("identifier registry conflict")
)
