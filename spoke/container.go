package spoke

import (
	"slices"

	"github.com/oliverbestmann/ecsdb/internal/set"
)

// Instance is a single component value bound to exactly one entity.
type Instance struct {
	Id    InstanceId
	Owner EntityId
	Type  *ComponentType

	// always a pointer to a value of Type.Type
	value any
}

// Value returns a copy of the instance value.
func (i *Instance) Value() any {
	return i.Type.ValueOf(i.value)
}

// container holds the state of a single entity.
type container struct {
	id        EntityId
	blueprint BlueprintId

	// bitwise OR of all current component types and tags
	mask Bitmask

	// the component types currently bound, in the order they were added
	types []*ComponentType

	instances map[string][]*Instance
	tags      set.Set[string]

	destroyed bool
}

func (c *container) componentType(label string) (*ComponentType, bool) {
	for _, ty := range c.types {
		if ty.Label == label {
			return ty, true
		}
	}

	return nil, false
}

func (c *container) hasType(label string) bool {
	_, ok := c.componentType(label)
	return ok
}

func (c *container) instance(label string, index int) (*Instance, bool) {
	instances := c.instances[label]
	if index < 0 || index >= len(instances) {
		return nil, false
	}

	return instances[index], true
}

func (c *container) findInstance(instanceId InstanceId) (*Instance, int, bool) {
	for _, instances := range c.instances {
		for idx, instance := range instances {
			if instance.Id == instanceId {
				return instance, idx, true
			}
		}
	}

	return nil, 0, false
}

// allInstances returns the instances of the entity in type order.
func (c *container) allInstances() []*Instance {
	var result []*Instance
	for _, ty := range c.types {
		result = append(result, c.instances[ty.Label]...)
	}

	return result
}

func (c *container) removeType(label string) []*Instance {
	removed := c.instances[label]
	delete(c.instances, label)

	c.types = slices.DeleteFunc(c.types, func(ty *ComponentType) bool {
		return ty.Label == label
	})

	return removed
}
