package spoke

import (
	"maps"

	"github.com/oliverbestmann/ecsdb/internal/set"
)

// Mutations maps an entity to the component instances affected in the
// current tick, each with the label of its component type.
type Mutations map[EntityId]map[InstanceId]string

func (m Mutations) record(instance *Instance) {
	instances := m[instance.Owner]
	if instances == nil {
		instances = map[InstanceId]string{}
		m[instance.Owner] = instances
	}

	instances[instance.Id] = instance.Type.Label
}

// Labels returns the component labels affected on an entity.
func (m Mutations) Labels(entityId EntityId) set.Set[string] {
	var labels set.Set[string]
	for _, label := range m[entityId] {
		labels.Insert(label)
	}

	return labels
}

// Contains reports whether an instance of every given label was affected on the entity.
func (m Mutations) Contains(entityId EntityId, labels ...string) bool {
	if _, ok := m[entityId]; !ok {
		return false
	}

	found := m.Labels(entityId)
	for _, label := range labels {
		if !found.Has(label) {
			return false
		}
	}

	return true
}

func (m Mutations) clone() Mutations {
	result := make(Mutations, len(m))
	for entityId, instances := range m {
		result[entityId] = maps.Clone(instances)
	}

	return result
}

// mutationRecord holds the created, changed and removed instances of the current tick.
type mutationRecord struct {
	Created Mutations
	Changed Mutations
	Removed Mutations
}

func newMutationRecord() mutationRecord {
	return mutationRecord{
		Created: Mutations{},
		Changed: Mutations{},
		Removed: Mutations{},
	}
}

func (r *mutationRecord) created(instance *Instance) {
	r.Created.record(instance)
	r.Changed.record(instance)
}

func (r *mutationRecord) changed(instance *Instance) {
	r.Changed.record(instance)
}

func (r *mutationRecord) removed(instance *Instance) {
	r.Removed.record(instance)
}

func (r *mutationRecord) clear() {
	clear(r.Created)
	clear(r.Changed)
	clear(r.Removed)
}

// MutationRecord is a read only snapshot of the mutations of a tick.
type MutationRecord struct {
	Tick    Tick
	Created Mutations
	Changed Mutations
	Removed Mutations
}
