package spoke

import (
	"fmt"
	"slices"

	"github.com/oliverbestmann/ecsdb/internal/set"
)

// BlueprintId is an opaque handle to a Blueprint registered on a Storage.
type BlueprintId uint32

// Blueprint declares which component types an entity class carries.
type Blueprint struct {
	Name  string
	Types []*ComponentType
}

func NewBlueprint(name string, types ...*ComponentType) Blueprint {
	return Blueprint{Name: name, Types: slices.Clone(types)}
}

// With returns a copy of the blueprint extended by the given types.
// The receiver is not modified.
func (b Blueprint) With(types ...*ComponentType) Blueprint {
	return Blueprint{
		Name:  b.Name,
		Types: append(slices.Clone(b.Types), types...),
	}
}

// Named returns a copy of the blueprint using a different name.
func (b Blueprint) Named(name string) Blueprint {
	return Blueprint{Name: name, Types: slices.Clone(b.Types)}
}

// Declares returns the component type declared for a label.
func (b *Blueprint) Declares(label string) (*ComponentType, bool) {
	for _, ty := range b.Types {
		if ty.Label == label {
			return ty, true
		}
	}

	return nil, false
}

func (b *Blueprint) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: blueprint has no name", ErrMalformedBlueprint)
	}

	var labels set.Set[string]
	for idx, ty := range b.Types {
		if ty == nil {
			return fmt.Errorf("%w: %s: component type %d is nil", ErrMalformedBlueprint, b.Name, idx)
		}

		if ty.Label == "" {
			return fmt.Errorf("%w: %s: component type %d has no label", ErrMalformedBlueprint, b.Name, idx)
		}

		if !labels.Insert(ty.Label) {
			return fmt.Errorf("%w: %s: duplicate component type %q", ErrMalformedBlueprint, b.Name, ty.Label)
		}
	}

	return nil
}
