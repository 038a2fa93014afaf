package ecsdb

import (
	"fmt"

	"github.com/oliverbestmann/ecsdb/spoke"
)

// Get returns a copy of the first instance of a component on an entity.
func Get[T any](w *World, entityId EntityId, ty ComponentType[T]) (T, bool) {
	value, ok := w.storage.Component(entityId, ty.Label(), 0)
	if !ok {
		var tZero T
		return tZero, false
	}

	return value.(T), true
}

// GetAll returns copies of all instances of a component on an entity.
func GetAll[T any](w *World, entityId EntityId, ty ComponentType[T]) []T {
	values := w.storage.Components(entityId, ty.Label())

	result := make([]T, 0, len(values))
	for _, value := range values {
		result = append(result, value.(T))
	}

	return result
}

// Modify runs fn with a pointer to the first instance of a component and records
// the instance as changed. The pointer must not be used after fn returns.
func Modify[T any](w *World, entityId EntityId, ty ComponentType[T], fn func(value *T)) bool {
	return ModifyAt(w, entityId, ty, 0, fn)
}

// ModifyAt is like Modify, but targets the instance at the given index of an array capable component.
func ModifyAt[T any](w *World, entityId EntityId, ty ComponentType[T], index int, fn func(value *T)) bool {
	return w.storage.Mutate(entityId, ty.Label(), index, func(ptr any) {
		fn(ptr.(*T))
	})
}

// Replace overwrites the instance at the given index.
func Replace[T any](w *World, entityId EntityId, ty ComponentType[T], index int, value T) error {
	if err := w.storage.Replace(entityId, ty.Label(), index, value); err != nil {
		return fmt.Errorf("replace %s: %w", ty, err)
	}

	return nil
}

// Add binds a typed component value to an entity.
func Add[T any](w *World, entityId EntityId, ty ComponentType[T], value T) error {
	return w.storage.AddComponent(entityId, ty.Erased(), value)
}

// Instances returns the instance records of an entity, e.g. to remove a single
// instance of an array capable component with RemoveInstance.
func (w *World) Instances(entityId EntityId) []spoke.Instance {
	return w.storage.Instances(entityId)
}

func (w *World) RemoveInstance(entityId EntityId, instanceId spoke.InstanceId) bool {
	return w.storage.RemoveInstance(entityId, instanceId)
}
