package ecsdb

import (
	"github.com/oliverbestmann/ecsdb/spoke"
)

type (
	EntityId    = spoke.EntityId
	BlueprintId = spoke.BlueprintId
	Blueprint   = spoke.Blueprint
	Data        = spoke.Data
	Tick        = spoke.Tick
)

const NoEntityId = spoke.NoEntityId

// AnyComponentType is implemented by every ComponentType regardless of its value type.
type AnyComponentType interface {
	Erased() *spoke.ComponentType
}

// ComponentType is a typed handle to a component type with values of type T.
type ComponentType[T any] struct {
	ty *spoke.ComponentType
}

// Define declares a single valued component type.
func Define[T any](label string, defaults T) ComponentType[T] {
	return ComponentType[T]{ty: spoke.NewComponentType(label, defaults)}
}

// DefineArray declares an array capable component type. An entity may carry
// any number of instances of it.
func DefineArray[T any](label string, defaults T) ComponentType[T] {
	return ComponentType[T]{ty: spoke.NewArrayComponentType(label, defaults)}
}

func (c ComponentType[T]) Label() string {
	return c.ty.Label
}

func (c ComponentType[T]) IsArray() bool {
	return c.ty.Array
}

func (c ComponentType[T]) Erased() *spoke.ComponentType {
	return c.ty
}

func (c ComponentType[T]) String() string {
	return c.ty.String()
}

// NewBlueprint describes an entity class carrying the given component types.
func NewBlueprint(name string, types ...AnyComponentType) Blueprint {
	return spoke.NewBlueprint(name, erase(types)...)
}

func erase(types []AnyComponentType) []*spoke.ComponentType {
	erased := make([]*spoke.ComponentType, 0, len(types))
	for _, ty := range types {
		erased = append(erased, ty.Erased())
	}

	return erased
}

func labelsOf(types []AnyComponentType) []string {
	labels := make([]string, 0, len(types))
	for _, ty := range types {
		labels = append(labels, ty.Erased().QueryLabel())
	}

	return labels
}
